// Package ticket imports the anonymized support ticket dataset and replays
// imported conversations into live sessions.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
)

var (
	customerMessageRe = regexp.MustCompile(`Customer's message: "([\s\S]*?)"`)
	agentMessageRe    = regexp.MustCompile(`Agent's message: "([\s\S]*?)"`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:Thanks|Hi|Hello|Dear)\s+([A-Z][a-z]+)(?:\s+([A-Z][a-z]+))?`),
		regexp.MustCompile(`(?i)Kind regards[,\s]*([A-Z][a-z]+)(?:\s+([A-Z][a-z]+))?`),
		regexp.MustCompile(`([A-Z][a-z]+)(?:\s+([A-Z][a-z]+))?\s+(?:Sent from|--)`),
	}

	datasetMonths = map[string]time.Month{
		"Jan": time.January, "Feb": time.February, "Mar": time.March,
		"Apr": time.April, "May": time.May, "Jun": time.June,
		"Jul": time.July, "Aug": time.August, "Sep": time.September,
		"Oct": time.October, "Nov": time.November, "Dec": time.December,
	}
)

// TranscriptMessage is one turn recovered from a raw dataset conversation.
type TranscriptMessage struct {
	Role    contract.MessageRole
	Content string
}

// ParseConversation splits a raw ticket conversation into ordered customer
// and agent turns. Turns are located by their quoted message markers and
// sorted by position so interleaving is preserved.
func ParseConversation(conversation string) []TranscriptMessage {
	type positioned struct {
		TranscriptMessage
		index int
	}

	var all []positioned
	for _, m := range customerMessageRe.FindAllStringSubmatchIndex(conversation, -1) {
		all = append(all, positioned{
			TranscriptMessage: TranscriptMessage{
				Role:    contract.RoleCustomer,
				Content: strings.TrimSpace(conversation[m[2]:m[3]]),
			},
			index: m[0],
		})
	}
	for _, m := range agentMessageRe.FindAllStringSubmatchIndex(conversation, -1) {
		all = append(all, positioned{
			TranscriptMessage: TranscriptMessage{
				Role:    contract.RoleAgent,
				Content: strings.TrimSpace(conversation[m[2]:m[3]]),
			},
			index: m[0],
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })

	out := make([]TranscriptMessage, 0, len(all))
	for _, p := range all {
		out = append(out, p.TranscriptMessage)
	}
	return out
}

// ParseDatasetDate converts the dataset's "19-Jul-2025 13:07:09" format to
// UTC. An unparseable value falls back to the current time.
func ParseDatasetDate(dateStr string) time.Time {
	parts := strings.SplitN(strings.TrimSpace(dateStr), " ", 2)
	if len(parts) != 2 {
		return time.Now().UTC()
	}
	dateFields := strings.Split(parts[0], "-")
	if len(dateFields) != 3 {
		return time.Now().UTC()
	}
	month, ok := datasetMonths[dateFields[1]]
	if !ok {
		month = time.January
	}

	t, err := time.Parse("2006-1-2 15:04:05", fmt.Sprintf("%s-%d-%s %s", dateFields[2], int(month), dateFields[0], parts[1]))
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// ExtractCustomerName guesses the customer's name from greeting and signoff
// patterns in the conversation, falling back to a generic name derived from
// the customer id.
func ExtractCustomerName(conversation, customerID string) (firstName, lastName string) {
	for _, pattern := range namePatterns {
		if m := pattern.FindStringSubmatch(conversation); m != nil && m[1] != "" {
			return m[1], m[2]
		}
	}

	suffix := strings.TrimPrefix(customerID, "cust_")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "Customer", suffix
}

// ImportResult summarizes one dataset import run.
type ImportResult struct {
	Success  bool
	Imported int
	Skipped  int
	Errors   []string
}

// Importer loads raw dataset tickets into the store.
type Importer struct {
	store contract.Store
	log   zerolog.Logger
}

func NewImporter(store contract.Store, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import persists tickets, skipping conversations already imported.
// Individual failures are accumulated rather than aborting the run.
func (i *Importer) Import(ctx context.Context, tickets []contract.RawTicket) ImportResult {
	result := ImportResult{Success: true}

	for _, ticket := range tickets {
		_, err := i.store.ImportedTicketByConversation(ctx, ticket.ConversationID)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, contract.ErrTicketNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing %s: %v", ticket.ConversationID, err))
			continue
		}

		imported := &contract.ImportedTicket{
			ConversationID:    ticket.ConversationID,
			CustomerID:        ticket.CustomerID,
			OriginalCreatedAt: ticket.CreatedAt,
			ConversationType:  ticket.ConversationType,
			Subject:           ticket.Subject,
			RawConversation:   ticket.Conversation,
		}
		if err := i.store.ImportTicket(ctx, imported); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to import %s: %v", ticket.ConversationID, err))
			continue
		}
		result.Imported++
	}

	result.Success = len(result.Errors) == 0
	i.log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("ticket import finished")
	return result
}

// CreateSessionFromTicket replays an imported ticket into a live session:
// the customer identity is recovered from the transcript and every parsed
// turn becomes a session message in original order.
func (i *Importer) CreateSessionFromTicket(ctx context.Context, ticket *contract.ImportedTicket) (*contract.Session, error) {
	firstName, lastName := ExtractCustomerName(ticket.RawConversation, ticket.CustomerID)

	session := &contract.Session{
		CustomerEmail:     ticket.CustomerID + "@example.com",
		CustomerFirstName: firstName,
		CustomerLastName:  lastName,
		ShopifyCustomerID: ticket.CustomerID,
		Subject:           ticket.Subject,
		ConversationID:    ticket.ConversationID,
		ConversationType:  ticket.ConversationType,
		RawConversation:   ticket.RawConversation,
	}
	if err := i.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	for _, turn := range ParseConversation(ticket.RawConversation) {
		msg := &contract.Message{
			SessionID: session.ID,
			Role:      turn.Role,
			Content:   turn.Content,
		}
		if err := i.store.AppendMessage(ctx, msg); err != nil {
			return nil, err
		}
	}
	return session, nil
}
