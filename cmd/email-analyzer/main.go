package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/config"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/factory"
	"github.com/inboxguard/inboxguard/internal/logging"
	"github.com/inboxguard/inboxguard/internal/service"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

var (
	// Tenant flags
	tenantID   = flag.String("tenant", "default", "Tenant identifier")
	orgDomains = flag.String("org-domains", "", "Comma-separated list of the organization's own domains")
	tracking   = flag.String("tracking-domains", "", "Comma-separated list of trusted tracking domains")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	jsonOutput = flag.Bool("json", false, "Emit the verdict as JSON")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	email, err := readEmail(logger)
	if err != nil {
		logger.Fatal("Failed to read email", zap.Error(err))
	}
	email.TenantID = *tenantID

	tenant := core.TenantContext{
		TenantID:             *tenantID,
		OrgDomains:           splitList(*orgDomains),
		KnownTrackingDomains: splitList(*tracking),
	}

	detectors := factory.NewDetectorFactory(cfg, logger)
	engine, err := detectors.CreateRuleEngine()
	if err != nil {
		logger.Fatal("Failed to create rule engine", zap.Error(err))
	}
	imp, err := detectors.CreateImpersonationDetector()
	if err != nil {
		logger.Fatal("Failed to create impersonation detector", zap.Error(err))
	}

	svc, err := service.NewDetectionService(service.DefaultOptions(), engine, nil, imp, nil, nil, logger, nil)
	if err != nil {
		logger.Fatal("Failed to create detection service", zap.Error(err))
	}

	startTime := time.Now()
	verdict, err := svc.AnalyzeEmail(context.Background(), service.AnalyzeRequest{Email: email, Tenant: tenant})
	if err != nil {
		logger.Fatal("Failed to analyze email", zap.Error(err))
	}
	duration := time.Since(startTime)

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			logger.Fatal("Failed to encode verdict", zap.Error(err))
		}
		return
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s <%s>\n", email.From.DisplayName, email.From.Address)
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("URLs found: %d\n", len(email.URLs))

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Risk score: %d/100\n", verdict.Score)
	fmt.Printf("Risk level: %s\n", verdict.RiskLevel)
	fmt.Printf("Signals: %d\n", len(verdict.Signals))
	for _, sig := range verdict.Signals {
		fmt.Printf("  [%s] %s (+%d): %s\n", sig.Severity, sig.Type, sig.Score, sig.Detail)
	}
	fmt.Printf("Processing time: %v\n", duration)
}

// readEmail parses an RFC 5322 message from the input file or stdin into the
// detection model.
func readEmail(logger *zap.Logger) (*core.Email, error) {
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file %s: %w", *inputFile, err)
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read email body: %w", err)
	}
	body := string(bodyBytes)

	email := &core.Email{
		ID:         uuid.New(),
		Headers:    make(map[string]string),
		Subject:    msg.Header.Get("Subject"),
		TextBody:   body,
		Recipients: splitList(msg.Header.Get("To")),
		ReplyTo:    msg.Header.Get("Reply-To"),
		URLs:       urlintel.ExtractURLs(body),
		ReceivedAt: time.Now().UTC(),
	}
	for k := range msg.Header {
		email.Headers[k] = msg.Header.Get(k)
	}

	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		email.From = core.EmailAddress{
			Address:     addr.Address,
			Domain:      core.DomainOf(addr.Address),
			DisplayName: addr.Name,
		}
	} else {
		email.From = core.EmailAddress{Address: msg.Header.Get("From")}
	}
	return email, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
