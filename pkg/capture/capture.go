// Package capture builds a device inventory from an offline packet capture.
// Hosts are taken from ARP replies; later IPv4 traffic from a known host
// hints at its device type.
package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// UnknownType is used for hosts without a traffic hint
const UnknownType = "Unknown"

// ErrNoHosts is returned by sources when a capture holds no ARP replies
var ErrNoHosts = errors.New("no hosts found")

// typeByPort maps well known IoT service ports to device categories
var typeByPort = map[uint16]string{
	53:   "Router",
	67:   "Router",
	554:  "Camera",
	1883: "Smart Hub",
	8883: "Smart Hub",
	5683: "Sensor",
	1900: "Media Device",
	8008: "Media Device",
	9100: "Printer",
}

// host is a device observed in the capture
type host struct {
	ip       string
	mac      string
	order    int
	typeHint string
}

// Importer turns captures into devices
type Importer struct {
	vendors *VendorDB
	logger  *logrus.Logger
}

// NewImporter creates an importer. A nil vendor database means no vendor lookup.
func NewImporter(vendors *VendorDB, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Importer{vendors: vendors, logger: logger}
}

// ReadFile imports the devices of a pcap file
func (im *Importer) ReadFile(path string) ([]models.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	devices, err := im.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return devices, nil
}

// Read imports the devices of a pcap stream, ordered by first appearance
func (im *Importer) Read(r io.Reader) ([]models.Device, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid capture: %w", err)
	}

	hosts := make(map[string]*host)
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	packets := 0

	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read packet %d: %w", packets+1, err)
		}
		packets++
		im.processPacket(packet, hosts)
	}

	im.logger.WithFields(logrus.Fields{
		"packets": packets,
		"hosts":   len(hosts),
	}).Info("Capture imported")

	return im.toDevices(hosts), nil
}

func (im *Importer) processPacket(packet gopacket.Packet, hosts map[string]*host) {
	if arpLayer := packet.Layer(layers.LayerTypeARP); arpLayer != nil {
		arp, _ := arpLayer.(*layers.ARP)
		if arp.Operation != layers.ARPReply {
			return
		}

		ip := net.IP(arp.SourceProtAddress).String()
		if _, exists := hosts[ip]; !exists {
			hosts[ip] = &host{
				ip:    ip,
				mac:   net.HardwareAddr(arp.SourceHwAddress).String(),
				order: len(hosts),
			}
		}
		return
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return
	}
	ip, _ := ipLayer.(*layers.IPv4)
	h, known := hosts[ip.SrcIP.String()]
	if !known || h.typeHint != "" {
		return
	}

	var srcPort uint16
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		srcPort = uint16(tcp.SrcPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		srcPort = uint16(udp.SrcPort)
	}

	if t, ok := typeByPort[srcPort]; ok {
		h.typeHint = t
	}
}

func (im *Importer) toDevices(hosts map[string]*host) []models.Device {
	ordered := make([]*host, 0, len(hosts))
	for _, h := range hosts {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	devices := make([]models.Device, 0, len(ordered))
	for i, h := range ordered {
		vendor := ""
		if im.vendors != nil {
			vendor = im.vendors.LookupVendor(h.mac)
		}

		deviceType := h.typeHint
		if deviceType == "" {
			deviceType = UnknownType
		}

		name := deviceType
		if vendor != "" {
			name = vendor + " " + deviceType
		}

		devices = append(devices, models.Device{
			ID:              "cap-" + strconv.Itoa(i+1),
			Name:            name,
			IP:              h.ip,
			MAC:             h.mac,
			Type:            deviceType,
			Risk:            models.RiskSafe,
			Vulnerabilities: []models.Vulnerability{},
			IsOnline:        true,
			Manufacturer:    vendor,
		})
	}

	return devices
}
