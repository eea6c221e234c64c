package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
	"github.com/AshkanYarmoradi/go-adm/cli/styles"
	"github.com/AshkanYarmoradi/go-adm/cli/ui"
	"github.com/AshkanYarmoradi/go-adm/middleware/metrics"
	"github.com/AshkanYarmoradi/go-adm/middleware/tracing"
)

// ErrDiagnosticsFailed is returned by diagnose when a check fails.
var ErrDiagnosticsFailed = errors.New("one or more checks failed")

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(v *viper.Viper) *cobra.Command {
	var (
		trace       bool
		showMetrics bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your adm setup.

This command verifies:
  • Configuration file validity
  • Data layer reachability
  • Cache backend health and a write/read round trip`,
		Aliases: []string{"diag", "doctor"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			d := &diagnostics{}
			d.app, d.appErr = newApp(ctx, v, cmd.ErrOrStderr())
			if d.app != nil {
				defer d.app.Close()
			}

			if d.app != nil && trace {
				tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(newTraceExporter(cmd.ErrOrStderr())))
				defer tp.Shutdown(context.Background())
				tracer := tracing.NewTracer(tracing.WithTracerProvider(tp), tracing.WithServiceName("adm-cli"))
				d.app.gateway = tracing.NewGatewayMiddleware(d.app.gateway, tracer)
				d.app.cache = tracing.NewCacheMiddleware(d.app.cache, tracer)
			}

			var registry *prometheus.Registry
			if d.app != nil && showMetrics {
				registry = prometheus.NewRegistry()
				m := metrics.New(metrics.WithMetricsServiceName("adm-cli"))
				if err := m.Register(registry); err != nil {
					return err
				}
				d.app.gateway = m.WrapGateway(d.app.gateway)
				d.app.cache = m.WrapCache(d.app.cache)
			}
			if d.app != nil {
				d.app.rebuildServices()
			}

			fmt.Fprintln(out, styles.Title.Render(styles.IconChart+" Running Diagnostics"))

			failed := runChecks(ctx, out, d.checks())

			if registry != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, styles.Subtitle.Render("Metrics:"))
				fmt.Fprintln(out, metricsTable(registry).Render())
			}

			if failed {
				return ErrDiagnosticsFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Print the spans of every check to stderr")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print the metrics recorded by the checks")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for all checks")

	return cmd
}

func newTraceExporter(w io.Writer) sdktrace.SpanExporter {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		// stdouttrace only fails on invalid options
		panic(err)
	}
	return exporter
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func(ctx context.Context) CheckResult
}

// runChecks prints each result and reports whether any check failed.
func runChecks(ctx context.Context, out io.Writer, checks []DiagnosticCheck) bool {
	var (
		failed          bool
		recommendations []string
	)

	for i, check := range checks {
		fmt.Fprint(out, styles.FormatStep(i+1, len(checks), "Checking "+check.Name+"... "))

		result := check.Check(ctx)
		switch result.Status {
		case StatusOK:
			fmt.Fprintln(out, ui.StatusBadge("ok"))
		case StatusWarning:
			fmt.Fprintln(out, ui.StatusBadge("skipped"))
		default:
			fmt.Fprintln(out, ui.StatusBadge("failed"))
			failed = true
		}
		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}
		if result.Recommendation != "" {
			recommendations = append(recommendations, result.Recommendation)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Divider(50))

	if len(recommendations) == 0 && !failed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed"))
		return false
	}
	if failed {
		fmt.Fprintln(out, styles.FormatError("Some checks failed"))
	} else {
		fmt.Fprintln(out, styles.FormatWarning("Some checks have warnings"))
	}
	for _, r := range recommendations {
		fmt.Fprintf(out, "  %s %s\n", styles.IconArrow, r)
	}
	return failed
}

type diagnostics struct {
	app    *app
	appErr error
}

func (d *diagnostics) checks() []DiagnosticCheck {
	return []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: d.checkConfiguration},
		{Name: "Data Layer", Check: d.checkGateway},
		{Name: "Cache Backend", Check: d.checkCacheBackend},
		{Name: "Cache Round Trip", Check: d.checkCacheRoundTrip},
	}
}

func checkGoVersion(context.Context) CheckResult {
	return newCheckResult("Go Version", StatusOK, runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH)
}

func (d *diagnostics) checkConfiguration(context.Context) CheckResult {
	const name = "Configuration"
	if d.appErr != nil {
		return newCheckResult(name, StatusError, d.appErr.Error()).
			withRecommendation("Fix adm.yaml or run 'adm init'")
	}
	cfg := d.app.cfg
	return newCheckResult(name, StatusOK, fmt.Sprintf("Project: %s, Cache: %s/%s", cfg.Project.Name, cfg.Cache.Driver, cfg.Cache.Codec))
}

// checkGateway treats any HTTP answer as reachable; only transport
// failures fail the check.
func (d *diagnostics) checkGateway(ctx context.Context) CheckResult {
	const name = "Data Layer"
	if d.app == nil {
		return newCheckResult(name, StatusWarning, "Skipped (no configuration)")
	}
	url := d.app.cfg.Gateway.URL

	_, err := d.app.gateway.Perform(ctx, "GET", "/")
	var gerr *adm.GatewayError
	switch {
	case err == nil, adm.IsNotFound(err), errors.Is(err, adm.ErrParse):
		return newCheckResult(name, StatusOK, url+" is reachable")
	case errors.Is(err, adm.ErrUnauthorized), errors.Is(err, adm.ErrForbidden):
		return newCheckResult(name, StatusWarning, url+" rejected the credentials").
			withRecommendation("Check gateway.token or ADM_GATEWAY_TOKEN")
	case errors.Is(err, adm.ErrConnection), errors.Is(err, context.DeadlineExceeded):
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Check gateway.url and that the data layer is running")
	case errors.As(err, &gerr) && gerr.Status > 0:
		return newCheckResult(name, StatusWarning, fmt.Sprintf("%s answered with status %d", url, gerr.Status))
	default:
		return newCheckResult(name, StatusError, err.Error())
	}
}

func (d *diagnostics) checkCacheBackend(ctx context.Context) CheckResult {
	const name = "Cache Backend"
	if d.app == nil {
		return newCheckResult(name, StatusWarning, "Skipped (no configuration)")
	}
	driver := d.app.cfg.Cache.Driver

	hc, ok := d.app.backend.(adapters.HealthChecker)
	if !ok {
		return newCheckResult(name, StatusOK, driver+" (no health check)")
	}
	if err := hc.Ping(ctx); err != nil {
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Check cache.url and that the " + driver + " server is running")
	}
	return newCheckResult(name, StatusOK, driver+" is healthy")
}

func (d *diagnostics) checkCacheRoundTrip(ctx context.Context) CheckResult {
	const name = "Cache Round Trip"
	if d.app == nil {
		return newCheckResult(name, StatusWarning, "Skipped (no configuration)")
	}

	key := d.app.service.Key("diagnose", uuid.NewString())
	opts := adm.CacheOptions{ExpiresIn: time.Minute}
	value := adm.ObjectOf("checked_at", time.Now().UTC().Format(time.RFC3339))

	if err := d.app.cache.Write(ctx, key, value, opts); err != nil {
		return newCheckResult(name, StatusError, "write: "+err.Error())
	}
	got, found, err := d.app.cache.Read(ctx, key, opts)
	if err != nil {
		return newCheckResult(name, StatusError, "read: "+err.Error())
	}
	if !found {
		return newCheckResult(name, StatusError, "entry written but not found")
	}
	if _, err := d.app.cache.DeleteMatched(ctx, key); err != nil {
		return newCheckResult(name, StatusWarning, "delete: "+err.Error())
	}

	o, ok := got.(*adm.Object)
	if !ok || o.Value("checked_at") != value.Value("checked_at") {
		return newCheckResult(name, StatusError, fmt.Sprintf("read back %v", adm.Plain(got))).
			withRecommendation("Check cache.codec")
	}
	return newCheckResult(name, StatusOK, "Wrote and read "+key)
}

// metricsTable lists the non-zero counters gathered by registry.
func metricsTable(registry *prometheus.Registry) *ui.Table {
	table := ui.NewTable("Metric", "Labels", "Value")

	families, err := registry.Gather()
	if err != nil {
		table.AddRow("error", err.Error(), "")
		return table
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			table.AddRow(mf.GetName(), labelString(m.GetLabel()), fmt.Sprintf("%g", value))
		}
	}
	return table
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.GetValue() == "" {
			continue
		}
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
