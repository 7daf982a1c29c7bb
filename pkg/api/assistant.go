package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
)

// Message is a chat message between the user and the assistant
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"` // "user" or "assistant"
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the body of a chat request
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// maxMessages bounds the kept conversation
const maxMessages = 200

// Assistant answers security questions from the current scan state
type Assistant struct {
	logger   *logrus.Logger
	snapshot func() scan.Snapshot
	mu       sync.Mutex
	messages []Message
}

// NewAssistant creates an assistant reading scan state from snapshot
func NewAssistant(snapshot func() scan.Snapshot, logger *logrus.Logger) *Assistant {
	if logger == nil {
		logger = logrus.New()
	}

	return &Assistant{
		logger:   logger,
		snapshot: snapshot,
		messages: make([]Message, 0),
	}
}

// RegisterRoutes sets up the assistant API routes
func (a *Assistant) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/assistant/messages", a.getMessagesHandler)
	group.POST("/assistant/chat", a.chatHandler)
}

// Messages returns the conversation so far
func (a *Assistant) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message{}, a.messages...)
}

// Chat records a user message and returns the assistant reply
func (a *Assistant) Chat(text string) Message {
	now := time.Now()
	user := Message{ID: uuid.NewString(), Content: text, Role: "user", Timestamp: now}
	reply := Message{ID: uuid.NewString(), Content: a.Respond(text), Role: "assistant", Timestamp: now}

	a.mu.Lock()
	a.messages = append(a.messages, user, reply)
	if len(a.messages) > maxMessages {
		a.messages = a.messages[len(a.messages)-maxMessages:]
	}
	a.mu.Unlock()

	return reply
}

func (a *Assistant) getMessagesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.Messages())
}

func (a *Assistant) chatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assistantMessage": a.Chat(req.Message),
	})
}

// deviceTopics maps question keywords to the device types they ask about
var deviceTopics = []struct {
	keywords []string
	types    []string
	advice   string
}{
	{
		keywords: []string{"camera", "cctv"},
		types:    []string{"IP Camera", "Camera"},
		advice:   "Update camera firmware, change default credentials and keep video streams off the internet.",
	},
	{
		keywords: []string{"router", "gateway"},
		types:    []string{"Router"},
		advice:   "Set a strong admin password, disable remote administration and keep the router firmware current.",
	},
	{
		keywords: []string{"lock", "door"},
		types:    []string{"Smart Lock"},
		advice:   "Make sure the lock only talks over encrypted channels and review the paired accounts regularly.",
	},
	{
		keywords: []string{"tv", "television"},
		types:    []string{"Smart TV", "Media Device"},
		advice:   "Close ports you do not use and turn off automatic content recognition if you do not need it.",
	},
	{
		keywords: []string{"bulb", "light"},
		types:    []string{"Smart Light", "Smart Bulb"},
		advice:   "Keep the bridge updated and place lighting on a separate network segment.",
	},
}

// Respond builds the reply to a question
func (a *Assistant) Respond(query string) string {
	a.logger.WithField("query", query).Debug("Processing assistant query")
	q := strings.ToLower(query)
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	match := func(prefix bool, keys ...string) bool {
		for _, k := range keys {
			for _, w := range words {
				if w == k || prefix && strings.HasPrefix(w, k) {
					return true
				}
			}
		}
		return false
	}
	has := func(keys ...string) bool { return match(true, keys...) }

	snap := a.snapshot()

	switch {
	case match(false, "help", "hi", "hello", "hey"):
		return "Hello! I can summarise your scan results, explain the vulnerabilities found " +
			"and give security recommendations. What would you like to know about your network?"
	case has("vulnerab", "risk", "issue"):
		return vulnerabilityResponse(snap)
	}

	// a named device type wins over general advice
	for _, topic := range deviceTopics {
		if has(topic.keywords...) {
			return deviceResponse(snap, topic.types, topic.advice)
		}
	}

	if has("recommend", "secure", "protect") {
		return recommendations(snap)
	}
	if has("result", "scan", "found", "device") {
		return scanResultsResponse(snap)
	}

	return "I'm here to help with IoT security. You can ask me about scan results, vulnerabilities found, " +
		"specific device types or general security best practices."
}

func scanResultsResponse(snap scan.Snapshot) string {
	if snap.Scanning {
		return fmt.Sprintf("A scan of %s is running (%d%%). %d devices found so far.",
			snap.Stats.NetworkName, snap.Stats.ScanProgress, snap.Stats.TotalDevices)
	}
	if len(snap.Devices) == 0 {
		return "No scan results are available yet. Would you like to start a network scan?"
	}
	return fmt.Sprintf("The last scan of %s found %d devices, %d of them vulnerable. "+
		"The scan was completed at %s and the overall risk is %s.",
		snap.Stats.NetworkName, snap.Stats.TotalDevices, snap.Stats.VulnerableDevices,
		snap.Stats.LastScanTime, snap.RiskLevel)
}

func vulnerabilityResponse(snap scan.Snapshot) string {
	if snap.Stats.TotalVulnerabilities == 0 {
		if len(snap.Devices) > 0 {
			return "Good news! No vulnerabilities were detected in the last scan. " +
				"Keep firmware updated and change default passwords anyway."
		}
		return "No vulnerability data is available yet. Would you like to start a network scan?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I detected %d vulnerabilities, %d of them high severity:\n",
		snap.Stats.TotalVulnerabilities, snap.Stats.HighRiskVulnerabilities)
	n := 0
	for _, d := range snap.Devices {
		for _, v := range d.Vulnerabilities {
			n++
			fmt.Fprintf(&b, "%d. %s on %s (%s): %s\n", n, v.Name, d.Name, d.IP, v.Severity.Label())
		}
	}
	b.WriteString("Would you like specific information about one of these devices?")
	return b.String()
}

func recommendations(snap scan.Snapshot) string {
	var b strings.Builder
	b.WriteString("Here are my key recommendations for IoT security:\n")

	seen := map[string]bool{}
	n := 0
	for _, d := range snap.Devices {
		for _, v := range d.Vulnerabilities {
			if v.Solution == "" || seen[v.Solution] {
				continue
			}
			seen[v.Solution] = true
			n++
			fmt.Fprintf(&b, "%d. %s (%s)\n", n, v.Solution, d.Name)
		}
	}
	for _, general := range []string{
		"Change default passwords on all devices",
		"Keep firmware updated regularly",
		"Segment IoT devices onto a separate network",
	} {
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, general)
	}

	return strings.TrimRight(b.String(), "\n")
}

func deviceResponse(snap scan.Snapshot, types []string, advice string) string {
	var matched []models.Device
	for _, d := range snap.Devices {
		for _, t := range types {
			if strings.EqualFold(d.Type, t) {
				matched = append(matched, d)
				break
			}
		}
	}

	if len(matched) == 0 {
		return "I did not find a " + strings.ToLower(types[0]) + " in the last scan. " + advice
	}

	var b strings.Builder
	for _, d := range matched {
		fmt.Fprintf(&b, "%s at %s is rated %s.", d.Name, d.IP, d.Risk.Label())
		for _, v := range d.Vulnerabilities {
			fmt.Fprintf(&b, " %s: %s", v.Name, v.Solution)
		}
		b.WriteString("\n")
	}
	b.WriteString(advice)
	return b.String()
}
