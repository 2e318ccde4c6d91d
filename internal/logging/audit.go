package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names an audited action.
type AuditEventType string

const (
	// On-chain writes
	AuditTxSent   AuditEventType = "tx_sent"
	AuditTxMined  AuditEventType = "tx_mined"
	AuditTxFailed AuditEventType = "tx_failed"

	// Settlement
	AuditHeadersSigned AuditEventType = "headers_signed"

	// Pipeline steps
	AuditStepComplete AuditEventType = "step_complete"
	AuditStepError    AuditEventType = "step_error"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	Wallet     string                 `json:"wallet,omitempty"`
	Target     string                 `json:"target,omitempty"` // contract or node
	Action     string                 `json:"action,omitempty"` // method or step
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger = &AuditLogger{}
)

// AuditLogger appends audit events as JSON lines to <logs>/<date>_audit.log.
// Events are dropped unless debug mode initialized the logs directory.
type AuditLogger struct {
	wallet string
}

// InitAudit opens today's audit log.
func InitAudit() error {
	if !IsDebugMode() || logsDir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	return auditLogger
}

// AuditForWallet returns an audit logger that stamps events with wallet.
func AuditForWallet(wallet string) *AuditLogger {
	return &AuditLogger{wallet: wallet}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Wallet == "" {
		event.Wallet = a.wallet
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// TxSent records a signed transaction handed to the RPC node.
func (a *AuditLogger) TxSent(contract, method, txHash string, nonce, gas uint64, value string) {
	a.Log(AuditEvent{
		EventType: AuditTxSent,
		Category:  string(CategoryChain),
		Target:    contract,
		Action:    method,
		Success:   true,
		Fields: map[string]interface{}{
			"tx":    txHash,
			"nonce": nonce,
			"gas":   gas,
			"value": value,
		},
	})
}

// TxResult records a mined (or failed) transaction.
func (a *AuditLogger) TxResult(contract, method, txHash string, block, gasUsed uint64, success bool, errMsg string) {
	eventType := AuditTxMined
	if !success {
		eventType = AuditTxFailed
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  string(CategoryChain),
		Target:    contract,
		Action:    method,
		Success:   success,
		Error:     errMsg,
		Fields: map[string]interface{}{
			"tx":       txHash,
			"block":    block,
			"gas_used": gasUsed,
		},
	})
}

// HeadersSigned records a settlement signature. The signature itself is not logged.
func (a *AuditLogger) HeadersSigned(kind, user, node, nonce string) {
	a.Log(AuditEvent{
		EventType: AuditHeadersSigned,
		Category:  string(CategorySettlement),
		Wallet:    user,
		Target:    node,
		Action:    kind,
		Success:   true,
		Fields:    map[string]interface{}{"nonce": nonce},
	})
}

// Step records the outcome of a pipeline step.
func (a *AuditLogger) Step(step string, durationMs int64, err error) {
	e := AuditEvent{
		EventType:  AuditStepComplete,
		Category:   string(CategoryWorkflow),
		Action:     step,
		Success:    err == nil,
		DurationMs: durationMs,
	}
	if err != nil {
		e.EventType = AuditStepError
		e.Error = err.Error()
	}
	a.Log(e)
}
