package domain

// PaymentDetails is the authoritative payment record fetched from the
// provider by ID. FolderKey and Recipient come from the payment's
// metadata (set at checkout time) and identify what to deliver where.
type PaymentDetails struct {
	ID        string
	Status    string // "approved" or a provider-specific rejection state
	FolderKey string
	Recipient string // destination JID, e.g. "5511...@s.whatsapp.net"
}

// StatusApproved is the only payment status that triggers delivery.
const StatusApproved = "approved"
