package capture

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// builtinVendors maps common IoT OUI prefixes to vendor names
var builtinVendors = map[string]string{
	"001A11": "Google",
	"18B430": "Nest Labs",
	"50C7BF": "TP-Link",
	"F4F26D": "TP-Link",
	"286C07": "Xiaomi",
	"64B473": "Xiaomi",
	"001788": "Philips Lighting",
	"ECB5FA": "Philips Lighting",
	"8C8590": "Samsung",
	"D0D003": "Samsung",
	"44650D": "Amazon",
	"74C246": "Amazon",
	"B827EB": "Raspberry Pi Foundation",
	"DCA632": "Raspberry Pi Foundation",
	"C4AC59": "Hikvision",
	"4CBD8F": "Hikvision",
	"3C710E": "Dahua",
	"E48D8C": "MikroTik",
	"00B0D0": "Yale",
	"240AC4": "Espressif",
	"A4CF12": "Espressif",
}

// VendorDB resolves MAC address prefixes to vendor names
type VendorDB struct {
	vendors map[string]string // MAC prefix -> vendor name
	mutex   sync.RWMutex
	logger  *logrus.Logger
}

// NewVendorDB creates a vendor database from the built-in table. When path
// is not empty, "PREFIX,Vendor" lines from that file are added on top.
func NewVendorDB(path string, logger *logrus.Logger) (*VendorDB, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db := &VendorDB{
		vendors: make(map[string]string, len(builtinVendors)),
		logger:  logger,
	}
	for prefix, vendor := range builtinVendors {
		db.vendors[prefix] = vendor
	}

	if path != "" {
		if err := db.load(path); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func (db *VendorDB) load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	db.mutex.Lock()
	defer db.mutex.Unlock()

	added := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ",", 2)
		if len(parts) != 2 {
			continue
		}

		prefix := normalizeMAC(parts[0])
		vendor := strings.TrimSpace(parts[1])
		if prefix != "" && vendor != "" {
			db.vendors[prefix] = vendor
			added++
		}
	}

	db.logger.Infof("Loaded %d MAC vendor entries from %s", added, path)
	return scanner.Err()
}

// LookupVendor looks up a vendor by MAC address
func (db *VendorDB) LookupVendor(macAddress string) string {
	mac := normalizeMAC(macAddress)
	if len(mac) < 6 {
		return ""
	}

	db.mutex.RLock()
	defer db.mutex.RUnlock()

	// most specific prefix first
	for i := len(mac); i >= 6; i -= 2 {
		if vendor, exists := db.vendors[mac[:i]]; exists {
			return vendor
		}
	}

	return ""
}

// Count returns the number of known prefixes
func (db *VendorDB) Count() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.vendors)
}

func normalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	mac = strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	return strings.ToUpper(mac)
}
