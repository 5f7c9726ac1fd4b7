// Command gateway is the composition root: it wires every internal
// package into one running process, the way cmd/saas-api/main.go wires
// its repositories and services before handing them to fiber, reading
// every knob from the environment via internal/config.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/config"
	"github.com/chatgw/chatgateway/internal/gateway"
	"github.com/chatgw/chatgateway/internal/httpapi"
	"github.com/chatgw/chatgateway/internal/ledger"
	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/logging"
	"github.com/chatgw/chatgateway/internal/pipeline"
	"github.com/chatgw/chatgateway/internal/publicchat"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/store/gormstore"
	"github.com/chatgw/chatgateway/internal/toolpool"
	"github.com/chatgw/chatgateway/internal/upload"
	"github.com/chatgw/chatgateway/internal/whatsapp"
)

// @title Multi-tenant WhatsApp Chat Gateway API
// @version 1.0
// @description API documentation for the chat gateway: bot profiles, WhatsApp sessions, public chat widgets and admin operations.
// @license.name MIT
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("[STARTUP] invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.App.LogLevel, Environment: cfg.App.Environment})
	bootLog := logging.Component(log, "startup")

	db, err := gormstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to open document store")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, housekeeping, err := buildServer(ctx, cfg, db, log)
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to build server")
		os.Exit(1)
	}
	housekeeping.Start()
	defer housekeeping.Stop()

	app := srv.Handler()

	go func() {
		bootLog.Info().Str("addr", ":"+cfg.App.Port).Msg("listening")
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			bootLog.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	bootLog.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		bootLog.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	bootLog.Info().Msg("stopped cleanly")
}

// buildServer wires every component together: store at the bottom,
// pipeline/ledger/toolpool above it, the two session managers above
// those, and gateway.Gateway + httpapi.Server as the outermost layer.
// It also returns a cron.Cron carrying the periodic housekeeping jobs,
// started and stopped by the caller around the HTTP server's own
// lifetime, the way the teacher's internal/core/workflow.Scheduler
// wraps a *cron.Cron for its own periodic triggers.
func buildServer(ctx context.Context, cfg *config.Config, db store.Store, log zerolog.Logger) (*httpapi.Server, *cron.Cron, error) {
	led := ledger.New(db)

	uploader, err := upload.New(cfg.Store.CloudName, cfg.Store.APIKey, cfg.Store.APISecret, cfg.Store.Folder, cfg.Store.MaxUploadBytes, cfg.Store.AllowedMimeTypes)
	if err != nil {
		return nil, nil, err
	}

	pl := pipeline.New(db, led, uploader, logging.Component(log, "pipeline"))

	adapterFor := func(ctx context.Context) (llm.Adapter, error) {
		switch cfg.LLM.DefaultProvider {
		case "gemini":
			return llm.NewGeminiAdapter(ctx, cfg.LLM.GeminiAPIKey, "gemini-2.0-flash", cfg.LLM.ToolLoopDepth)
		default:
			return llm.NewOpenAIAdapter(cfg.LLM.OpenAIAPIKey, "gpt-4o-mini", cfg.LLM.ToolLoopDepth)
		}
	}
	mcpIdleTimeout := time.Duration(cfg.MCP.IdleTimeoutMinutes) * time.Minute
	newWAPool := func() *toolpool.Pool { return toolpool.New(logging.Component(log, "toolpool-whatsapp"), mcpIdleTimeout) }
	newPublicPool := func() *toolpool.Pool { return toolpool.New(logging.Component(log, "toolpool-publicchat"), mcpIdleTimeout) }

	waManager := whatsapp.New(db, newWAPool, adapterFor, logging.Component(log, "whatsapp"),
		cfg.WhatsApp.AuthDir, cfg.WhatsApp.MaxReconnects, time.Duration(cfg.WhatsApp.ReconnectBaseWait)*time.Second)
	waManager.SetInboundHandler(func(ctx context.Context, msg whatsapp.InboundMessage) (string, error) {
		return inboundToPipelineReply(ctx, db, pl, msg)
	})

	pcManager := publicchat.New(pl, newPublicPool, adapterFor)

	gw := gateway.New(db, waManager, pcManager, logging.Component(log, "gateway"))

	if err := waManager.RecoverOnStartup(ctx); err != nil {
		logging.Component(log, "startup").Warn().Err(err).Msg("whatsapp session recovery finished with errors")
	}

	housekeepingLog := logging.Component(log, "housekeeping")
	housekeeping := cron.New(cron.WithSeconds())
	if _, err := housekeeping.AddFunc("0 */5 * * * *", func() {
		pcManager.Cleanup(ctx)
		housekeepingLog.Info().Int("sessions", pcManager.Count()).Msg("swept idle public chat sessions")
	}); err != nil {
		return nil, nil, err
	}

	srv := httpapi.New(db, gw, uploader, logging.Component(log, "httpapi"), cfg.Security.JWTSecret, cfg.App.Environment == "production", cfg.Store.MaxUploadBytes)
	return srv, housekeeping, nil
}

// inboundToPipelineReply is the closure whatsapp.Manager calls for every
// inbound message, turning it into one pipeline.ProcessTurn call against
// the session's own adapter and tool set. Kept outside the whatsapp
// package (rather than as a method there) so that package never imports
// pipeline directly.
func inboundToPipelineReply(ctx context.Context, db store.Store, pl *pipeline.Pipeline, msg whatsapp.InboundMessage) (string, error) {
	profile, err := db.FindProfileByID(ctx, msg.ProfileID)
	if err != nil {
		return "", err
	}

	turn := pipeline.Turn{Text: msg.Text, UserName: msg.SenderName}
	if msg.Image != nil {
		turn.Attachment = &pipeline.InboundAttachment{
			Data: msg.Image.Data, MimeType: msg.Image.MimeType, Filename: "whatsapp-image",
		}
	}

	var invoke llm.ToolInvoker
	if msg.ToolSet != nil {
		invoke = msg.ToolSet.Invoke
	}

	// sessionId identifies one contact's thread on one connection; using
	// the bare connectionName would merge every contact talking to the
	// same bot into a single Chat.
	sessionID := msg.ConnectionName + ":" + msg.From

	result, err := pl.ProcessTurn(ctx, pipeline.SessionContext{
		UserID:           msg.UserID,
		ProfileID:        msg.ProfileID,
		ProfileName:      msg.ProfileName,
		Source:           store.SourceWhatsApp,
		ConnectionName:   msg.ConnectionName,
		SessionID:        sessionID,
		SystemPromptText: pipeline.RenderSystemPrompt(profile),
	}, turn, msg.Adapter, invoke, toolDefs(msg.ToolSet))
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func toolDefs(ts *toolpool.ToolSet) []llm.ToolDef {
	if ts == nil {
		return nil
	}
	var defs []llm.ToolDef
	for _, t := range ts.List() {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema, &schema)
		defs = append(defs, llm.ToolDef{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return defs
}
