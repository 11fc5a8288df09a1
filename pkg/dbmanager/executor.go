package dbmanager

import (
	"context"
	"log"
	"strings"
	"time"

	"querypilot/config"
	"querypilot/pkg/sqlcheck"
	"querypilot/pkg/viz"
)

// Executor runs validated statements against registered connections and
// shapes the results. Every statement passes the validator before it touches
// a pool; the read-only pool posture is the second line of defense, never
// the first.
type Executor struct {
	registry  *Registry
	validator *sqlcheck.Validator
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:  registry,
		validator: sqlcheck.NewValidator(config.Env.MaxJoins),
	}
}

// Run validates and executes one statement against a connection. Trusted
// statements (generated by the gateway itself, not pasted by a caller) get a
// lenient re-validation when the strict pass rejects them; untrusted input
// never does.
func (e *Executor) Run(ctx context.Context, connectionID, sqlText string, trusted bool) *QueryResult {
	started := time.Now()

	check := e.validator.Validate(sqlText)
	if !check.Valid && trusted {
		check = e.validator.ValidateLenient(sqlText)
	}
	if !check.Valid {
		log.Printf("Executor -> Run -> Rejected statement for %s: %s", connectionID, check.ErrorKind)
		return &QueryResult{
			Success:         false,
			SQL:             sqlText,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Error:           check.Message,
			ErrorKind:       check.ErrorKind,
		}
	}

	if !e.registry.Has(connectionID) {
		return &QueryResult{
			Success:         false,
			SQL:             sqlText,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Error:           "no connection registered for id: " + connectionID,
			ErrorKind:       ErrorKindConnectionNotFound,
		}
	}

	pool, err := e.registry.AcquireExisting(ctx, connectionID)
	if err != nil {
		return &QueryResult{
			Success:         false,
			SQL:             sqlText,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Error:           err.Error(),
			ErrorKind:       ErrorKindConnectionNotFound,
		}
	}
	driver, exists := e.registry.Driver(connectionID)
	if !exists {
		return &QueryResult{
			Success:         false,
			SQL:             sqlText,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Error:           "no driver for connection: " + connectionID,
			ErrorKind:       ErrorKindConnectionNotFound,
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, config.Env.QueryTimeout)
	defer cancel()

	rows, columns, err := driver.Execute(queryCtx, pool, sqlText)
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		log.Printf("Executor -> Run -> Execution failed for %s: %v", connectionID, err)
		return &QueryResult{
			Success:         false,
			SQL:             sqlText,
			ExecutionTimeMs: elapsed,
			Error:           err.Error(),
			ErrorKind:       classifyExecutionError(err),
		}
	}

	vizConfig := viz.Recommend(rows, columns)
	return &QueryResult{
		Success:         true,
		SQL:             sqlText,
		Data:            rows,
		Columns:         columns,
		RowCount:        len(rows),
		ExecutionTimeMs: elapsed,
		Visualization:   &vizConfig,
	}
}

// classifyExecutionError distinguishes driver-side binding problems from
// everything else the engine can report.
func classifyExecutionError(err error) string {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"wrong number of arguments",
		"not enough args",
		"expected 0 arguments",
		"sql: expected",
		"bind message supplies",
		"parameter index out of range",
	} {
		if strings.Contains(msg, marker) {
			return ErrorKindInvalidSQLParameters
		}
	}
	return ErrorKindExecutionError
}
