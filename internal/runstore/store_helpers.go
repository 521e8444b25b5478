package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tailor/internal/services/llm"
)

const recordColumns = "request_id, pipeline, status, batch_id, item_index, inputs_json, output_json, stages_json, prompt_tokens, completion_tokens, total_tokens, failed_stage, error_kind, error_message, duration_ms, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		requestID    string
		pipelineName string
		statusStr    string
		batchID      sql.NullString
		itemIndex    sql.NullInt64
		inputs       sql.NullString
		output       sql.NullString
		stages       sql.NullString
		tokens       llm.Tokens
		failedStage  sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		durationMs   int64
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&requestID,
		&pipelineName,
		&statusStr,
		&batchID,
		&itemIndex,
		&inputs,
		&output,
		&stages,
		&tokens.Prompt,
		&tokens.Completion,
		&tokens.Total,
		&failedStage,
		&errorKind,
		&errorMessage,
		&durationMs,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		RequestID:    requestID,
		Pipeline:     pipelineName,
		Status:       Status(statusStr),
		BatchID:      batchID.String,
		Tokens:       tokens,
		FailedStage:  failedStage.String,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
		DurationMs:   durationMs,
	}
	if itemIndex.Valid {
		idx := int(itemIndex.Int64)
		record.ItemIndex = &idx
	}
	if inputs.Valid {
		record.Inputs = json.RawMessage(inputs.String)
	}
	if output.Valid {
		record.Output = json.RawMessage(output.String)
	}
	if stages.Valid && stages.String != "" {
		if err := json.Unmarshal([]byte(stages.String), &record.Stages); err != nil {
			return nil, err
		}
	}
	if ts, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = ts
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
