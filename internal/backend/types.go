package backend

// NewTicketPayload is the JSON body POSTed to /tickets for a new support
// request.
type NewTicketPayload struct {
	EmailID         string `json:"email_id"`
	SenderName      string `json:"sender_name"`
	SenderEmail     string `json:"sender_email"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	SentAt          string `json:"gmail_date"`
	MessageHeaderID string `json:"email_message_id"`
	ThreadID        string `json:"email_thread_id"`
}

// ReplyPayload is the JSON body POSTed to /messages for a follow-up on an
// existing ticket.
type ReplyPayload struct {
	EmailID         string `json:"email_id"`
	SenderEmail     string `json:"sender_email"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	SentAt          string `json:"gmail_date"`
	MessageHeaderID string `json:"email_message_id"`
	ThreadID        string `json:"email_thread_id"`
	TicketID        string `json:"ticket_id"`
}

// ticketItem is one record in the APEX-style items wrapper returned by the
// ticket lookup endpoint.
type ticketItem struct {
	TicketID int64  `json:"ticket_id"`
	ThreadID string `json:"email_thread_id"`
	EmailID  string `json:"email_id"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
}

type ticketLookupResponse struct {
	Items []ticketItem `json:"items"`
}

type replyStatusResponse struct {
	Status string `json:"status"`
}
