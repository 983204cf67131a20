package domain

import "time"

// Plan is a fixed-duration subscription tier.
type Plan string

// Subscription plans.
const (
	PlanOneMonth    Plan = "1m"
	PlanThreeMonths Plan = "3m"
	PlanSixMonths   Plan = "6m"
	PlanOneYear     Plan = "12m"
)

// Plans lists every plan in ascending duration order.
var Plans = []Plan{PlanOneMonth, PlanThreeMonths, PlanSixMonths, PlanOneYear}

// IsValid checks if the plan code is one of the fixed tiers.
func (p Plan) IsValid() bool {
	switch p {
	case PlanOneMonth, PlanThreeMonths, PlanSixMonths, PlanOneYear:
		return true
	}
	return false
}

// SubscriberStatus is the staff-set lifecycle state of a subscriber.
type SubscriberStatus string

// Subscriber statuses.
const (
	StatusActive    SubscriberStatus = "Active"
	StatusExpiring  SubscriberStatus = "Expiring"
	StatusExpired   SubscriberStatus = "Expired"
	StatusCancelled SubscriberStatus = "Cancelled"
	StatusTrial     SubscriberStatus = "Trial"
)

// Statuses lists every subscriber status.
var Statuses = []SubscriberStatus{StatusActive, StatusExpiring, StatusExpired, StatusCancelled, StatusTrial}

// IsValid checks if the status is valid.
func (s SubscriberStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusExpiring, StatusExpired, StatusCancelled, StatusTrial:
		return true
	}
	return false
}

// IsRevenueGenerating reports whether subscribers in this status count towards MRR.
func (s SubscriberStatus) IsRevenueGenerating() bool {
	return s == StatusActive || s == StatusExpiring || s == StatusTrial
}

// Subscriber represents a customer subscription record.
type Subscriber struct {
	ID             string           `json:"id"`
	FullName       string           `json:"full_name"`
	Email          string           `json:"email"`
	PhoneNumber    string           `json:"phone_number"`
	Plan           Plan             `json:"plan"`
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	Status         SubscriberStatus `json:"status"`
	Notes          string           `json:"notes"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Communications []Communication  `json:"communications,omitempty"`
	Payments       []Payment        `json:"payments,omitempty"`
}

// Channel is a delivery channel for subscriber communications.
type Channel string

// Communication channels.
const (
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "Email"
	ChannelWhatsApp Channel = "WhatsApp"
)

// IsValid checks if the channel is valid.
func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail || c == ChannelWhatsApp
}

// CommunicationStatus is the delivery state of a communication.
type CommunicationStatus string

// Communication statuses.
const (
	CommunicationSent      CommunicationStatus = "sent"
	CommunicationDelivered CommunicationStatus = "delivered"
	CommunicationFailed    CommunicationStatus = "failed"
)

// Communication is an append-only record of a message sent to a subscriber.
type Communication struct {
	ID           string              `json:"id"`
	SubscriberID string              `json:"subscriber_id"`
	Channel      Channel             `json:"channel"`
	Message      string              `json:"message"`
	Status       CommunicationStatus `json:"status"`
	SentAt       time.Time           `json:"sent_at"`
	CreatedBy    string              `json:"created_by"`
}

// Payment is an append-only record of money received for a subscription.
type Payment struct {
	ID            string    `json:"id"`
	SubscriberID  string    `json:"subscriber_id"`
	TransactionID *string   `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
	Method        string    `json:"method"`
	CreatedAt     time.Time `json:"created_at"`
}
