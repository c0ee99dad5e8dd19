package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/coffersTech/logalytics/internal/model"
)

// Severity grades a fired alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// maxSampleLogs caps the contributing records attached to an alert.
const maxSampleLogs = 5

// RuleConditions is the fixed predicate schema for alert rules. Set fields
// are AND-combined; within Tags and Keywords a single match suffices.
type RuleConditions struct {
	Level       string   `json:"level,omitempty"`
	Source      string   `json:"source,omitempty"`
	MinSeverity int      `json:"min_severity,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Matches reports whether a record satisfies the conditions.
func (c RuleConditions) Matches(rec model.LogRecord) bool {
	if c.Level != "" && !strings.EqualFold(c.Level, rec.Level.String()) {
		return false
	}
	if c.Source != "" && c.Source != rec.Source {
		return false
	}
	if c.MinSeverity > 0 && rec.Severity < c.MinSeverity {
		return false
	}
	if len(c.Tags) > 0 {
		found := false
		for _, tag := range c.Tags {
			if rec.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.Keywords) > 0 {
		msg := strings.ToLower(rec.Message)
		found := false
		for _, kw := range c.Keywords {
			if strings.Contains(msg, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AlertRule fires when at least Threshold records matching Conditions fall
// within the trailing Window at ingest time. After firing, the rule is in
// cooldown: matches keep being counted but no new alert fires until
// Cooldown has elapsed. Cooldown expiry is checked lazily at evaluation
// time; there is no timer.
type AlertRule struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Conditions  RuleConditions `json:"conditions"`
	Severity    Severity       `json:"severity"`
	Threshold   int            `json:"threshold"`
	Window      time.Duration  `json:"window"`
	Cooldown    time.Duration  `json:"cooldown"`
	Enabled     bool           `json:"enabled"`

	lastTriggered time.Time
}

// Alert is an immutable record of one firing of a rule.
type Alert struct {
	RuleName    string            `json:"rule_name"`
	Message     string            `json:"message"`
	Severity    Severity          `json:"severity"`
	TriggeredAt time.Time         `json:"triggered_at"`
	Count       int               `json:"count"`
	SampleLogs  []model.LogRecord `json:"sample_logs"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// NotifyFunc receives each fired alert. Errors are logged, never
// propagated into the ingestion path.
type NotifyFunc func(Alert) error

// AddAlertRule registers a rule. Rule names are unique.
func (e *Engine) AddAlertRule(rule AlertRule) error {
	if rule.Name == "" {
		return fmt.Errorf("alert rule needs a name")
	}
	if rule.Threshold <= 0 {
		return fmt.Errorf("alert rule %q: threshold must be positive", rule.Name)
	}
	if rule.Window <= 0 {
		return fmt.Errorf("alert rule %q: window must be positive", rule.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.Name == rule.Name {
			return fmt.Errorf("alert rule %q already registered", rule.Name)
		}
	}
	e.rules = append(e.rules, &rule)
	return nil
}

// RemoveAlertRule unregisters a rule by name.
func (e *Engine) RemoveAlertRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rule := range e.rules {
		if rule.Name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// SetRuleEnabled toggles a rule without unregistering it.
func (e *Engine) SetRuleEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if rule.Name == name {
			rule.Enabled = enabled
			return true
		}
	}
	return false
}

// Rules returns a copy of the registered rules.
func (e *Engine) Rules() []AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}
	return out
}

// AddNotificationHook registers a hook invoked for every fired alert.
func (e *Engine) AddNotificationHook(fn NotifyFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, fn)
}

// Alerts returns a copy of every alert fired or loaded so far.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// AppendAlerts appends previously persisted alerts to the in-memory list.
// Loaded alerts are not validated against currently-registered rules.
func (e *Engine) AppendAlerts(alerts []Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, alerts...)
}

// evalRulesLocked runs every enabled rule against the just-committed
// record and returns the alerts that fired. Callers hold e.mu.
func (e *Engine) evalRulesLocked(rec model.LogRecord) []Alert {
	var fired []Alert
	now := e.now()
	for _, rule := range e.rules {
		if !rule.Enabled || !rule.Conditions.Matches(rec) {
			continue
		}

		count, samples := e.windowMatchesLocked(rule, now)
		if count < rule.Threshold {
			continue
		}
		if !rule.lastTriggered.IsZero() && now.Sub(rule.lastTriggered) < rule.Cooldown {
			// In cooldown: matches counted, no new firing.
			continue
		}

		alert := Alert{
			RuleName: rule.Name,
			Message: fmt.Sprintf("Alert %q triggered: %d matches in %s",
				rule.Name, count, rule.Window),
			Severity:    rule.Severity,
			TriggeredAt: now,
			Count:       count,
			SampleLogs:  samples,
		}
		rule.lastTriggered = now
		e.alerts = append(e.alerts, alert)
		fired = append(fired, alert)
		e.logger.Warn("alert fired",
			"rule", rule.Name, "count", count, "severity", string(rule.Severity))
	}
	return fired
}

// windowMatchesLocked counts the records matching the rule's conditions in
// the trailing window, anchored at now-window via the time index. The end
// bound is now+1ns so the anchoring record itself is included.
func (e *Engine) windowMatchesLocked(rule *AlertRule, now time.Time) (int, []model.LogRecord) {
	start := now.Add(-rule.Window).UnixNano()
	count := 0
	var samples []model.LogRecord
	for _, id := range e.times.Range(start, now.UnixNano()+1) {
		rec, ok := e.records[id]
		if !ok || !rule.Conditions.Matches(rec) {
			continue
		}
		count++
		samples = append(samples, rec.Clone())
		if len(samples) > maxSampleLogs {
			samples = samples[1:] // keep the most recent ones
		}
	}
	return count, samples
}

// notify runs the notification hooks outside the engine lock. Hook errors
// and panics are logged and never abort the ingest that fired the alert.
func (e *Engine) notify(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	e.mu.Lock()
	hooks := e.notifiers
	e.mu.Unlock()

	for _, alert := range alerts {
		for i, hook := range hooks {
			e.safeNotify(hook, i, alert)
		}
	}
}

func (e *Engine) safeNotify(hook NotifyFunc, i int, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification hook panicked",
				"hook", i, "rule", alert.RuleName, "panic", r)
		}
	}()
	if err := hook(alert); err != nil {
		e.logger.Error("notification hook failed",
			"hook", i, "rule", alert.RuleName, "error", err)
	}
}
