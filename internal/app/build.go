package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/DamienDrash/arni-sub002/internal/actions"
	"github.com/DamienDrash/arni-sub002/internal/agents"
	"github.com/DamienDrash/arni-sub002/internal/bus"
	"github.com/DamienDrash/arni-sub002/internal/config"
	"github.com/DamienDrash/arni-sub002/internal/consent"
	"github.com/DamienDrash/arni-sub002/internal/conversation"
	"github.com/DamienDrash/arni-sub002/internal/dispatch"
	"github.com/DamienDrash/arni-sub002/internal/engine"
	"github.com/DamienDrash/arni-sub002/internal/ghost"
	"github.com/DamienDrash/arni-sub002/internal/httpapi"
	"github.com/DamienDrash/arni-sub002/internal/intent"
	"github.com/DamienDrash/arni-sub002/internal/memory"
	"github.com/DamienDrash/arni-sub002/internal/observability"
)

type BuildResult struct {
	Config        config.Config
	API           *httpapi.Server
	Engine        *engine.Engine
	Conversations *conversation.Manager
	Tiers         *memory.Manager
	Bus           *bus.Bus
	Metrics       *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, knowledge files, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewPersistentStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("persistent store init failed: %w", err)
	}
	knowledge, err := memory.NewKnowledgeTier(cfg.KnowledgeDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("knowledge tier init failed: %w", err)
	}

	classifier, err := intent.NewClassifier(intent.Config{
		Mode: cfg.ClassifierMode,
		URL:  cfg.ClassifierURL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	executor, err := actions.NewExecutor(actions.Config{
		Mode: cfg.ExecutorMode,
		URL:  cfg.ExecutorURL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("executor init failed: %w", err)
	}

	tiers := memory.NewManager(store, knowledge, memory.NewRuleExtractor(), cfg.RAMTurnCap)
	tiers.SetFlushHook(func() {
		metrics.MemoryCompactions.Inc()
	})
	gate := consent.NewGate(tiers)

	conversations := conversation.NewManager(cfg.ConversationInactivityTimeout)
	conversations.SetExpireHook(func(_ *conversation.Conversation) {
		metrics.ConversationEvents.WithLabelValues("expired").Inc()
		metrics.ActiveConversations.Set(float64(conversations.ActiveCount()))
	})

	table := dispatch.NewTable(executor, cfg.ConfirmationTTL)
	table.Register(intent.LabelBooking, agents.NewOpsHandler(executor))
	table.Register(intent.LabelSales, agents.NewSalesHandler())
	table.Register(intent.LabelHealth, agents.NewMedicHandler())
	table.Register(intent.LabelCrowd, agents.NewVisionHandler(executor))
	table.Register(intent.LabelSmalltalk, agents.NewPersonaHandler())

	supervisor := ghost.NewSupervisor(cfg.GhostWindow, store)

	b := bus.New(256)
	b.SetDropHook(func(topic string) {
		metrics.BusDropped.WithLabelValues(topic).Inc()
	})

	eng := engine.New(engine.Deps{
		TenantID:      cfg.TenantID,
		Conversations: conversations,
		Gate:          gate,
		Tiers:         tiers,
		Router:        intent.NewRouter(classifier, cfg.ConfidenceThreshold),
		Table:         table,
		Supervisor:    supervisor,
		Bus:           b,
		Metrics:       metrics,
	})

	api := httpapi.New(cfg, eng, supervisor, metrics)

	cleanup := func() error {
		var errs []string
		eng.Stop()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Engine:        eng,
		Conversations: conversations,
		Tiers:         tiers,
		Bus:           b,
		Metrics:       metrics,
		Cleanup:       cleanup,
	}, nil
}
