package notifications

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsConfig holds configuration for Apple Push Notification service
type APNsConfig struct {
	KeyPath    string // Path to .p8 key file
	KeyID      string // Key ID from Apple Developer Portal
	TeamID     string // Team ID from Apple Developer Portal
	BundleID   string // App bundle ID
	Production bool   // Use production environment
}

// APNsClient sends push notifications via Apple Push Notification service
type APNsClient struct {
	client   Pusher
	bundleID string
	logger   *log.Logger
	mu       sync.Mutex
}

// NewAPNsClient creates a new APNs client
func NewAPNsClient(cfg APNsConfig, logger *log.Logger) (*APNsClient, error) {
	if cfg.KeyPath == "" || cfg.KeyID == "" || cfg.TeamID == "" || cfg.BundleID == "" {
		logger.Println("APNs: missing configuration, push notifications disabled")
		return nil, nil
	}

	// Load the .p8 key
	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key file: %w", err)
	}

	// Parse the private key
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode APNs key PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("APNs key is not an ECDSA private key")
	}

	// Create the auth token
	authToken := &token.Token{
		AuthKey: ecdsaKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	// Create the client
	var client *apns2.Client
	if cfg.Production {
		client = apns2.NewTokenClient(authToken).Production()
	} else {
		client = apns2.NewTokenClient(authToken).Development()
	}

	logger.Printf("APNs: client initialized (production=%v, bundle=%s)", cfg.Production, cfg.BundleID)

	return NewAPNsClientWithPusher(client, cfg.BundleID, logger), nil
}

// NewAPNsClientWithPusher wraps an existing push transport.
func NewAPNsClientWithPusher(p Pusher, bundleID string, logger *log.Logger) *APNsClient {
	return &APNsClient{client: p, bundleID: bundleID, logger: logger}
}

// Pusher delivers a single APNs notification. *apns2.Client implements it.
type Pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// HabitReminder is the evening nudge for habits still open today.
type HabitReminder struct {
	Pending []string
	Day     time.Time
}

func reminderText(r HabitReminder) (title, body string) {
	switch n := len(r.Pending); n {
	case 1:
		return "Don't break the chain", fmt.Sprintf("'%s' is still open today. Say \"mark %s as done\" when you've finished.", r.Pending[0], strings.ToLower(r.Pending[0]))
	case 2:
		return "Two habits left today", fmt.Sprintf("'%s' and '%s' are still open. You've got this!", r.Pending[0], r.Pending[1])
	default:
		return fmt.Sprintf("%d habits left today", n), fmt.Sprintf("'%s', '%s' and %d more are still open. Small steps count!", r.Pending[0], r.Pending[1], n-2)
	}
}

// SendHabitReminder pushes a reminder listing the habits still open today.
func (c *APNsClient) SendHabitReminder(deviceToken string, r HabitReminder) error {
	if c == nil || c.client == nil || len(r.Pending) == 0 {
		return nil
	}

	title, body := reminderText(r)
	p := payload.NewPayload().
		AlertTitle(title).
		AlertBody(body).
		Sound("default").
		Custom("notification_type", "habit_reminder").
		Custom("date", r.Day.Format(time.DateOnly)).
		Custom("pending", len(r.Pending))

	return c.push(deviceToken, p, endOfDay(r.Day), "habit reminder")
}

// SendTestNotification sends a test notification
func (c *APNsClient) SendTestNotification(deviceToken, message string) error {
	if c == nil || c.client == nil {
		return nil
	}

	p := payload.NewPayload().
		AlertTitle("Habit Tracker Test").
		AlertBody(message).
		Sound("default")

	return c.push(deviceToken, p, time.Now().Add(1*time.Hour), "test notification")
}

func (c *APNsClient) push(deviceToken string, p *payload.Payload, expires time.Time, what string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.bundleID,
		Payload:     p,
		Expiration:  expires,
	}

	res, err := c.client.Push(notification)
	if err != nil {
		c.logger.Printf("APNs: failed to send %s: %v", what, err)
		return err
	}

	if res.StatusCode != 200 {
		c.logger.Printf("APNs: %s rejected (status=%d, reason=%s)", what, res.StatusCode, res.Reason)
		return fmt.Errorf("APNs rejected notification: %s", res.Reason)
	}

	c.logger.Printf("APNs: %s sent successfully to %s...", what, tokenPrefix(deviceToken))
	return nil
}

func endOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, day.Location())
}

func tokenPrefix(t string) string {
	if len(t) > 16 {
		return t[:16]
	}
	return t
}
