package runstore

import (
	"database/sql"
	"strings"
	"time"

	"storyloom/internal/storyboard"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           string
		topic        string
		aspectRatio  sql.NullString
		targetLength sql.NullString
		style        sql.NullString
		status       string
		finalPath    sql.NullString
		errorMessage sql.NullString
		errorKind    sql.NullString
		workspace    sql.NullString
		createdRaw   string
		updatedRaw   string
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id, &topic, &aspectRatio, &targetLength, &style, &status,
		&finalPath, &errorMessage, &errorKind, &workspace,
		&createdRaw, &updatedRaw, &finishedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:    id,
		Topic: topic,
		Params: storyboard.Params{
			AspectRatio:  aspectRatio.String,
			TargetLength: targetLength.String,
			Style:        style.String,
		},
		Status:       Status(status),
		FinalPath:    finalPath.String,
		ErrorMessage: errorMessage.String,
		ErrorKind:    errorKind.String,
		Workspace:    workspace.String,
		CreatedAt:    parseTime(createdRaw),
		UpdatedAt:    parseTime(updatedRaw),
	}
	if finishedRaw.Valid && finishedRaw.String != "" {
		t := parseTime(finishedRaw.String)
		run.FinishedAt = &t
	}
	return run, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return time.Time{}
		}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

var likeEscaper = strings.NewReplacer(`%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
