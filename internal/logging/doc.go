// Package logging builds the slog loggers used across storyloom.
//
// The console handler prints one readable line per record with a
// "[run · stage · scene N]" subject. The JSON handler is used for per-run
// files under log_dir/runs. TeeLogger mirrors a run's records into that file
// and CleanupOldLogs prunes old ones. WithContext and NewComponentLogger attach
// the run, stage, scene and component fields that both handlers understand.
package logging
