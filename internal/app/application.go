package app

import (
	"context"
	"fmt"

	"github.com/playtower/chipbank/internal/app/events"
	"github.com/playtower/chipbank/internal/app/services/transfer"
	"github.com/playtower/chipbank/internal/app/storage"
	"github.com/playtower/chipbank/internal/app/storage/memory"
	"github.com/playtower/chipbank/internal/app/system"
	"github.com/playtower/chipbank/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Transfers storage.TransferStore
	Directory storage.PlayerDirectory
}

// Options carries optional application settings.
type Options struct {
	// MaxTransfer caps the amount of a single transfer. Zero means the
	// service default.
	MaxTransfer int64
	// KafkaBrokers enables transfer event publishing when non-empty.
	KafkaBrokers []string
	// KafkaTopic is the topic for transfer events.
	KafkaTopic string
}

// Application ties the transfer service together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Transfers *transfer.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Transfers == nil || stores.Directory == nil {
		mem := memory.New()
		if stores.Transfers == nil {
			stores.Transfers = mem
		}
		if stores.Directory == nil {
			stores.Directory = mem
		}
	}

	manager := system.NewManager()

	var publisher events.Publisher = events.Nop{}
	if len(opts.KafkaBrokers) > 0 {
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "chip-transfers"
		}
		kafkaPub := events.NewKafkaPublisher(opts.KafkaBrokers, topic, log)
		if err := manager.Register(kafkaPub); err != nil {
			return nil, fmt.Errorf("register event publisher: %w", err)
		}
		publisher = kafkaPub
	} else {
		log.Warn("KAFKA_BROKERS not set; transfer event publishing disabled")
	}

	transferOpts := []transfer.Option{transfer.WithPublisher(publisher)}
	if opts.MaxTransfer > 0 {
		transferOpts = append(transferOpts, transfer.WithMaxTransfer(opts.MaxTransfer))
	}
	transferService := transfer.New(stores.Directory, stores.Transfers, log, transferOpts...)

	if err := manager.Register(system.NoopService{ServiceName: "transfers"}); err != nil {
		return nil, fmt.Errorf("register transfers service: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Transfers: transferService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
