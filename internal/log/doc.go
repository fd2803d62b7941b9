// Package log builds the slog loggers used by dqmon.
//
// Every logger produced here is wrapped in a SecureHandler, which masks
// values that would leak credentials into log output or log files:
//   - attributes whose key names a secret (password, token, webhook_url,
//     access_key, secret_key, authorization)
//   - Slack tokens (xoxb-, xoxp-, ...) and incoming webhook URLs, even when
//     embedded in an error message
//   - passwords in connection URLs such as redis://:pass@host:6379
//
// Masking applies in verbose mode too; Slack and object storage errors
// regularly quote the URL that failed.
//
// # Usage
//
//	logger, closeLog, err := log.New(log.Options{
//	    Writer:  os.Stderr,
//	    Verbose: verbose,
//	    File:    cfg.Log.File, // optional JSON log file
//	})
//	if err != nil {
//	    return err
//	}
//	defer closeLog()
//	slog.SetDefault(logger)
package log
