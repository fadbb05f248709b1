package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/gateway"
	"github.com/natpat/caz/agent/orchestrator"
	"github.com/natpat/caz/agent/store"
	"github.com/natpat/caz/agent/ticket"
	"github.com/natpat/caz/agent/tool"
	configx "github.com/natpat/caz/pkg/config"
	_ "github.com/natpat/caz/pkg/logger/autoload"
)

type AppConfig struct {
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
}

func main() {
	var (
		sessionID  = flag.String("session", "", "existing session id")
		message    = flag.String("message", "", "customer message to process")
		importPath = flag.String("import", "", "path to a raw ticket dataset JSON file")
		replayID   = flag.String("replay", "", "conversation id of an imported ticket to replay into a session")
		email      = flag.String("email", "", "customer email for a new session")
		firstName  = flag.String("first-name", "", "customer first name")
		lastName   = flag.String("last-name", "", "customer last name")
		shopifyID  = flag.String("customer-id", "", "shopify customer id")
		subject    = flag.String("subject", "", "email subject for a new session")
		listFlag   = flag.Bool("list-sessions", false, "list all sessions")
		clearFlag  = flag.Bool("clear-sessions", false, "delete all sessions (imported tickets are kept)")
	)

	appCfg := configx.MustNew[AppConfig]("")

	ctx := context.Background()

	var st contract.Store
	if strings.TrimSpace(appCfg.DatabaseDSN) != "" {
		pg, err := store.NewPostgres(store.PostgresConfig{DSN: appCfg.DatabaseDSN})
		if err != nil {
			log.Fatal().Err(err).Msg("opening postgres store")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrating postgres store")
		}
		st = pg
	} else {
		log.Warn().Msg("DATABASE_DSN not set, using in-memory store")
		st = store.NewMemory()
	}

	gwCfg := configx.MustNew[gateway.Config]("OPENROUTER")
	gw := gateway.MustNew(*gwCfg, log.Logger)

	toolCfg := configx.MustNew[tool.Config]("TOOLS")
	toolbox := tool.NewRegistry(tool.MustNew(*toolCfg))

	orch, err := orchestrator.New(st, gw, toolbox, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("building orchestrator")
	}

	switch {
	case *importPath != "":
		runImport(ctx, st, *importPath)

	case *replayID != "":
		runReplay(ctx, st, *replayID)

	case *listFlag:
		sessions, err := orch.ListSessions(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("listing sessions")
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-22s  escalated=%-5t  %s <%s>\n",
				s.ID, s.WorkflowCategory, s.IsEscalated, s.CustomerFirstName, s.CustomerEmail)
		}

	case *clearFlag:
		if err := orch.ClearAllSessions(ctx); err != nil {
			log.Fatal().Err(err).Msg("clearing sessions")
		}
		fmt.Println("All sessions cleared")

	case *message != "":
		id := *sessionID
		if id == "" {
			session, err := orch.CreateSession(ctx, contract.CustomerInfo{
				Email:             *email,
				FirstName:         *firstName,
				LastName:          *lastName,
				ShopifyCustomerID: *shopifyID,
			}, *subject)
			if err != nil {
				log.Fatal().Err(err).Msg("creating session")
			}
			id = session.ID
			fmt.Printf("Session: %s\n", id)
		}

		resp, err := orch.ProcessMessage(ctx, id, *message)
		if err != nil {
			log.Fatal().Err(err).Msg("processing message")
		}
		printResponse(resp)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runImport(ctx context.Context, st contract.Store, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("reading ticket dataset")
	}
	var tickets []contract.RawTicket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		log.Fatal().Err(err).Msg("decoding ticket dataset")
	}

	importer := ticket.NewImporter(st, log.Logger)
	result := importer.Import(ctx, tickets)
	fmt.Printf("Imported %d, skipped %d, errors %d\n", result.Imported, result.Skipped, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Println("  " + e)
	}
	if !result.Success {
		os.Exit(1)
	}
}

func runReplay(ctx context.Context, st contract.Store, conversationID string) {
	imported, err := st.ImportedTicketByConversation(ctx, conversationID)
	if err != nil {
		log.Fatal().Err(err).Str("conversation_id", conversationID).Msg("loading imported ticket")
	}

	importer := ticket.NewImporter(st, log.Logger)
	session, err := importer.CreateSessionFromTicket(ctx, imported)
	if err != nil {
		log.Fatal().Err(err).Msg("replaying ticket into session")
	}
	fmt.Printf("Session: %s (%s %s)\n", session.ID, session.CustomerFirstName, session.CustomerLastName)
}

func printResponse(resp contract.AgentResponse) {
	fmt.Println(resp.Message)
	if resp.ShouldEscalate && resp.EscalationSummary != nil {
		fmt.Printf("\n[escalated: %s, priority %s]\n", resp.EscalationSummary.Reason, resp.EscalationSummary.Priority)
	}
	if resp.Supervisor != nil {
		fmt.Printf("[review: approved=%t risk=%s]\n", resp.Supervisor.Approved, resp.Supervisor.RiskLevel)
	}
}
