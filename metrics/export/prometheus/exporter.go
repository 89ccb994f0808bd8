package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lockplane/authcore"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var counterDefs = []counterDef{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful password logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Rejected login attempts."},
	{authcore.MetricLoginLocked, "authcore_login_locked_total", "Logins refused because the account was locked."},
	{authcore.MetricAccountLocked, "authcore_account_locked_total", "Accounts locked by the failure threshold."},
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Accounts created."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected for an existing email."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful refresh-token rotations."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Rejected refresh attempts."},
	{authcore.MetricSessionCreated, "authcore_session_created_total", "Sessions created."},
	{authcore.MetricSessionRevoked, "authcore_session_revoked_total", "Sessions revoked."},
	{authcore.MetricLogout, "authcore_logout_total", "Single-session logouts."},
	{authcore.MetricLogoutAll, "authcore_logout_all_total", "Mass revocations."},
	{authcore.MetricOAuthLogin, "authcore_oauth_login_total", "Federated logins."},
	{authcore.MetricOAuthCodeIssued, "authcore_oauth_code_issued_total", "One-time codes issued."},
	{authcore.MetricOAuthCodeRedeemed, "authcore_oauth_code_redeemed_total", "One-time codes redeemed."},
	{authcore.MetricOAuthCodeRejected, "authcore_oauth_code_rejected_total", "One-time code redemptions rejected."},
	{authcore.MetricEmailVerified, "authcore_email_verified_total", "Email addresses verified."},
	{authcore.MetricPasswordResetRequest, "authcore_password_reset_request_total", "Password reset requests accepted."},
	{authcore.MetricPasswordResetConfirm, "authcore_password_reset_confirm_total", "Password resets completed."},
	{authcore.MetricSweepDeleted, "authcore_sweep_deleted_total", "Records removed by maintenance sweeps."},
}

// Exporter renders engine counters in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an exporter reading from engine.
func NewExporter(engine *authcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an exporter from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the rendered metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current counters in Prometheus text exposition format.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, def := range counterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	writeCounter(&b, "authcore_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", dropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
