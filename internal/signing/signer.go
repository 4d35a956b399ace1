package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSignatureInvalid = errors.New("signing: signature or checksum verification failed")
	ErrSaltNotFound     = errors.New("signing: no salt stored for ticket")
)

// Payload is the tamper-evident structure embedded in a ticket's QR
// code. The signature covers the canonical serialization of the claims
// concatenated with the per-ticket salt; the checksum binds the payload
// to one specific ticket's server-side salt so a validly signed payload
// cannot be relabelled for another ticket.
type Payload struct {
	EventID         uuid.UUID `json:"event_id"`
	TicketID        uuid.UUID `json:"ticket_id"`
	Buyer           string    `json:"buyer"`
	PaymentProgress string    `json:"payment_progress"`
	IssuedAt        int64     `json:"issued_at"`
	Salt            string    `json:"salt"`
	Signature       string    `json:"signature"`
	Checksum        string    `json:"checksum"`
}

// SaltStore persists the per-ticket secret salt. A salt is written once
// at issuance and never regenerated; regenerating it would invalidate
// every payload issued before.
type SaltStore interface {
	SaltForTicket(ctx context.Context, ticketID uuid.UUID) (string, error)
	StoreSalt(ctx context.Context, ticketID uuid.UUID, salt string) error
}

type Signer struct {
	key   *ecdsa.PrivateKey
	salts SaltStore
}

func NewSigner(key *ecdsa.PrivateKey, salts SaltStore) *Signer {
	return &Signer{key: key, salts: salts}
}

type claims struct {
	EventID         uuid.UUID `json:"event_id"`
	TicketID        uuid.UUID `json:"ticket_id"`
	Buyer           string    `json:"buyer"`
	PaymentProgress string    `json:"payment_progress"`
	IssuedAt        int64     `json:"issued_at"`
}

func canonical(p *Payload, salt string) ([]byte, error) {
	data, err := json.Marshal(claims{
		EventID:         p.EventID,
		TicketID:        p.TicketID,
		Buyer:           p.Buyer,
		PaymentProgress: p.PaymentProgress,
		IssuedAt:        p.IssuedAt,
	})
	if err != nil {
		return nil, err
	}
	return append(data, salt...), nil
}

func checksum(ticketID uuid.UUID, salt string) string {
	sum := sha256.Sum256([]byte(ticketID.String() + salt))
	return hex.EncodeToString(sum[:])
}

// Issue builds and signs the payload for an issued ticket. The salt is
// reused when one was already stored, so reissuing the QR for the same
// ticket yields a payload verifiable against the original salt.
func (s *Signer) Issue(ctx context.Context, eventID, ticketID uuid.UUID, buyer, paymentProgress string) (*Payload, error) {
	salt, err := s.salts.SaltForTicket(ctx, ticketID)
	if err != nil && !errors.Is(err, ErrSaltNotFound) {
		return nil, err
	}
	if salt == "" {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		salt = hex.EncodeToString(raw)
		if err := s.salts.StoreSalt(ctx, ticketID, salt); err != nil {
			// A concurrent issuance won the write; use its salt.
			stored, fetchErr := s.salts.SaltForTicket(ctx, ticketID)
			if fetchErr != nil {
				return nil, err
			}
			salt = stored
		}
	}

	payload := &Payload{
		EventID:         eventID,
		TicketID:        ticketID,
		Buyer:           buyer,
		PaymentProgress: paymentProgress,
		IssuedAt:        time.Now().Unix(),
		Salt:            salt,
	}

	digestInput, err := canonical(payload, salt)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(digestInput)

	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing payload: %w", err)
	}

	payload.Signature = base64.StdEncoding.EncodeToString(sig)
	payload.Checksum = checksum(ticketID, salt)

	return payload, nil
}

// Verify checks both the ECDSA signature over the payload's claimed
// fields and the checksum recomputed from the server-side salt for the
// claimed ticket id. Either failing alone means a forged or tampered
// ticket.
func (s *Signer) Verify(ctx context.Context, p *Payload) error {
	if p == nil || p.Signature == "" || p.Checksum == "" {
		return ErrSignatureInvalid
	}

	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return ErrSignatureInvalid
	}

	digestInput, err := canonical(p, p.Salt)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(digestInput)

	if !ecdsa.VerifyASN1(&s.key.PublicKey, digest[:], sig) {
		return ErrSignatureInvalid
	}

	storedSalt, err := s.salts.SaltForTicket(ctx, p.TicketID)
	if err != nil {
		if errors.Is(err, ErrSaltNotFound) {
			return ErrSignatureInvalid
		}
		return err
	}
	if checksum(p.TicketID, storedSalt) != p.Checksum {
		return ErrSignatureInvalid
	}

	return nil
}
