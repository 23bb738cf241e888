package main

import (
	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/notify"
	"tripdesk/internal/reschedule/engine"
	reschedulehandler "tripdesk/internal/reschedule/handler"
	rescheduleservice "tripdesk/internal/reschedule/service"
	ruleshandler "tripdesk/internal/rules/handler"
	"tripdesk/internal/rules/repository"
	"tripdesk/internal/rules/resolver"
	rulesservice "tripdesk/internal/rules/service"
	"tripdesk/internal/rules/validator"
	"tripdesk/pkg/app"
	"tripdesk/pkg/config"
	"tripdesk/pkg/contracts"

	"github.com/julienschmidt/httprouter"
)

const ServiceName = "tripdesk"

// apiHandler registers every handler group on the shared router.
type apiHandler struct {
	handlers []contracts.Handler
}

func (h apiHandler) RegisterRoutes(router *httprouter.Router) {
	for _, handler := range h.handlers {
		handler.RegisterRoutes(router)
	}
}

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting Tripdesk reschedule service")

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	dispatcher, err := notify.NewDispatcher(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize notification dispatcher", "error", err)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			cfg.Log.Error("Failed to close notification dispatcher", "error", err)
		}
	}()

	rescheduleService, ruleService := initServices(cfg, dispatcher)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, apiHandler{handlers: []contracts.Handler{
		reschedulehandler.NewRescheduleHandler(rescheduleService, cfg.Log),
		ruleshandler.NewRuleHandler(ruleService, cfg.Log),
	}})
	serverApp.Run()
}

func initServices(cfg *config.Config, dispatcher notify.Dispatcher) (rescheduleservice.RescheduleService, rulesservice.RuleService) {
	ruleRepo := repository.NewMongoRuleRepository(cfg)
	configRepo := repository.NewMongoGlobalConfigRepository(cfg)
	ruleValidator := validator.NewRuleValidator(cfg.Log)
	ruleService := rulesservice.NewRuleService(ruleRepo, configRepo, ruleValidator, cfg)

	bookingRepo := bookingsrepo.NewMongoBookingRepository(cfg)
	historyRepo := bookingsrepo.NewMongoHistoryRepository(cfg)
	lockRepo := bookingsrepo.NewRescheduleLockRepository(cfg)

	ruleResolver := resolver.NewResolver(ruleRepo, cfg.Log)
	policyEngine := engine.NewEngine(ruleResolver, bookingRepo, historyRepo, cfg)

	rescheduleService := rescheduleservice.NewRescheduleService(
		policyEngine,
		bookingRepo,
		historyRepo,
		lockRepo,
		dispatcher,
		cfg,
	)

	cfg.Log.Info("Reschedule services initialized", "database", cfg.MongoDatabaseName)
	return rescheduleService, ruleService
}
