package entities

import (
	"errors"
	"time"
)

// Customer is one record in the customer database, keyed by display name.
// OrderStatus and Action describe the customer's latest order; LabResult
// carries the most recent diagnostic summary for health-line deployments.
type Customer struct {
	CustomerID  string `json:"customerId" bson:"customer_id"`
	Name        string `json:"Name" bson:"name"`
	OrderStatus string `json:"OrderStatus" bson:"order_status"`
	Action      string `json:"Action" bson:"action"`
	LabResult   string `json:"LabResult" bson:"lab_result"`
}

// Profile is an account record looked up by phone number. PhoneNumber is
// stored digits-only.
type Profile struct {
	PhoneNumber   string `json:"phone_number" bson:"phone_number"`
	Name          string `json:"name" bson:"name"`
	Email         string `json:"email" bson:"email"`
	AccountStatus string `json:"account_status" bson:"account_status"`
	Membership    string `json:"membership" bson:"membership"`
}

// KnowledgeResult is a single scored passage returned by a knowledge
// base search.
type KnowledgeResult struct {
	Content  string            `json:"content"`
	Location string            `json:"location"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KnowledgeAnswer is the full response for one query.
type KnowledgeAnswer struct {
	Query       string            `json:"query"`
	Results     []KnowledgeResult `json:"results"`
	ResultCount int               `json:"result_count"`
}

// TranscriptEntry is one persisted line of conversation.
type TranscriptEntry struct {
	Role              string `json:"role" bson:"role"`
	Message           string `json:"message" bson:"message"`
	EndOfResponse     bool   `json:"endOfResponse" bson:"end_of_response"`
	EndOfConversation bool   `json:"endOfConversation" bson:"end_of_conversation"`
}

// Transcript is the stored record of one completed session.
type Transcript struct {
	ID        string            `json:"id" bson:"_id,omitempty"`
	SessionID string            `json:"session_id" bson:"session_id"`
	ClientID  string            `json:"client_id" bson:"client_id"`
	Entries   []TranscriptEntry `json:"entries" bson:"entries"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
}

func (t *Transcript) Validate() error {
	if t.SessionID == "" {
		return errors.New("session id is required")
	}
	return nil
}

func (p *Profile) Validate() error {
	if p.PhoneNumber == "" {
		return errors.New("phone number is required")
	}
	return nil
}
