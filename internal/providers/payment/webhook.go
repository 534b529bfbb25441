package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a signed webhook may be.
const signatureTolerance = 5 * time.Minute

func (s *Stripe) ConstructEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret != "" {
		if err := s.verify(payload, signature); err != nil {
			return Event{}, err
		}
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, ErrInvalidPayload
	}
	if strings.TrimSpace(event.Type) == "" {
		return Event{}, ErrInvalidPayload
	}
	return event, nil
}

func (s *Stripe) verify(payload []byte, header string) error {
	timestamp, signatures, err := parseStripeSignature(strings.TrimSpace(header))
	if err != nil {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	expected := computeSignature(s.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func computeSignature(secret, timestamp string, payload []byte) string {
	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

// SignPayload builds a Stripe-Signature header value. Used by tests and
// local tooling that replays events.
func SignPayload(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, computeSignature(secret, timestamp, payload))
}
