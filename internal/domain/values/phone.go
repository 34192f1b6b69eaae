package values

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PhoneNumber is a validated phone number stored in E.164 format.
// The SHA-256 hash of the normalized number is the indexing key used by
// every store in the gateway; plaintext is kept only where the outbound
// send needs it.
type PhoneNumber struct {
	number string
}

var (
	// E.164: + followed by up to 15 digits, no leading zero
	e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

	// US numbers in common local formats
	usPhoneRegex = regexp.MustCompile(`^(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})$`)
)

// NewPhoneNumber normalizes and validates a phone number in any supported
// format, returning it in E.164.
func NewPhoneNumber(number string) (PhoneNumber, error) {
	if number == "" {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be empty")
	}

	cleaned := cleanPhoneNumber(number)

	if e164Regex.MatchString(cleaned) {
		return PhoneNumber{number: cleaned}, nil
	}

	if matches := usPhoneRegex.FindStringSubmatch(strings.TrimSpace(number)); len(matches) == 4 {
		return PhoneNumber{number: "+1" + matches[1] + matches[2] + matches[3]}, nil
	}

	return PhoneNumber{}, fmt.Errorf("invalid phone number format: %s", number)
}

// NewPhoneNumberE164 accepts only strict E.164 input.
func NewPhoneNumberE164(number string) (PhoneNumber, error) {
	if !e164Regex.MatchString(number) {
		return PhoneNumber{}, fmt.Errorf("invalid E.164 format: %s", number)
	}
	return PhoneNumber{number: number}, nil
}

// MustNewPhoneNumber creates a PhoneNumber and panics on error (tests, constants).
func MustNewPhoneNumber(number string) PhoneNumber {
	phone, err := NewPhoneNumber(number)
	if err != nil {
		panic(err)
	}
	return phone
}

// String returns the number in E.164 format.
func (p PhoneNumber) String() string {
	return p.number
}

// E164 is an alias for String.
func (p PhoneNumber) E164() string {
	return p.number
}

// Hash returns the hex-encoded SHA-256 of the E.164 number. This is the
// storage and lookup key for consent, opt-out and DNC records.
func (p PhoneNumber) Hash() string {
	sum := sha256.Sum256([]byte(p.number))
	return hex.EncodeToString(sum[:])
}

// HashPhone hashes an already-normalized E.164 string without constructing
// a PhoneNumber. Callers must pass E.164 input.
func HashPhone(e164 string) string {
	sum := sha256.Sum256([]byte(e164))
	return hex.EncodeToString(sum[:])
}

func (p PhoneNumber) IsEmpty() bool {
	return p.number == ""
}

func (p PhoneNumber) Equal(other PhoneNumber) bool {
	return p.number == other.number
}

// IsUS reports whether the number is in the +1 country code.
func (p PhoneNumber) IsUS() bool {
	return strings.HasPrefix(p.number, "+1")
}

// MarshalJSON implements JSON marshaling.
func (p PhoneNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.number)
}

// UnmarshalJSON implements JSON unmarshaling.
func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	var number string
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	phone, err := NewPhoneNumber(number)
	if err != nil {
		return err
	}
	*p = phone
	return nil
}

// Value implements driver.Valuer for database storage.
func (p PhoneNumber) Value() (driver.Value, error) {
	if p.number == "" {
		return nil, nil
	}
	return p.number, nil
}

// Scan implements sql.Scanner for database retrieval.
func (p *PhoneNumber) Scan(value interface{}) error {
	if value == nil {
		*p = PhoneNumber{}
		return nil
	}

	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into PhoneNumber", value)
	}

	if str == "" {
		*p = PhoneNumber{}
		return nil
	}

	phone, err := NewPhoneNumber(str)
	if err != nil {
		return err
	}
	*p = phone
	return nil
}

func cleanPhoneNumber(number string) string {
	var b strings.Builder
	for _, char := range number {
		if char >= '0' && char <= '9' || char == '+' {
			b.WriteRune(char)
		}
	}
	return b.String()
}
