package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hitoshi/factcheck/internal/client"
	"github.com/hitoshi/factcheck/internal/logger"
)

// checkOutput はcheckサブコマンドが1件ごとに出力するJSON行。
type checkOutput struct {
	client.Result
	Message string `json:"message,omitempty"`
}

// runCheck は稼働中のサーバーに記事の検証を要求し、結果をJSON Linesでoutに出力する。
// ログはerrOutに出力する。1件でも失敗した場合はエラーを返す。
func runCheck(out, errOut io.Writer, args []string) error {
	var (
		server     string
		timeout    time.Duration
		retryDelay time.Duration
		retries    int
	)

	flagSet := pflag.NewFlagSet("factcheck check", pflag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.StringVar(&server, "server", envOr("FACTCHECK_SERVER", "http://localhost:8080"), "base URL of the fact-check API")
	flagSet.DurationVar(&timeout, "timeout", client.DefaultTimeout, "timeout per attempt")
	flagSet.DurationVar(&retryDelay, "retry-delay", client.DefaultRetryDelay, "base delay between retries (multiplied by attempt number)")
	flagSet.IntVar(&retries, "retries", client.DefaultMaxRetries, "maximum automatic retries on transient failures (negative disables)")
	flagSet.Usage = func() {
		fmt.Fprintf(errOut, "Usage:\n  factcheck check [flags] <subject-id>...\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	subjectIDs := flagSet.Args()
	if len(subjectIDs) == 0 {
		flagSet.Usage()
		return errors.New("at least one subject id is required")
	}

	log := logger.Setup(errOut, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// リクエスト単位のタイムアウトはControllerが管理するため、http.Clientには設定しない
	transport := client.NewHTTPTransport(server, &http.Client{})
	controller := client.NewController(transport, client.Config{
		Timeout:    timeout,
		RetryDelay: retryDelay,
		MaxRetries: retries,
	}, log)
	defer controller.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, id := range subjectIDs {
		controller.Start(id)
	}

	enc := json.NewEncoder(out)
	failed := 0
	for _, id := range subjectIDs {
		res, err := controller.Wait(ctx, id)
		if err != nil {
			log.Warn("check interrupted", slog.String("error", err.Error()))
			return err
		}
		if res.State != client.StateSucceeded {
			failed++
		}
		if err := enc.Encode(checkOutput{Result: res, Message: res.Message()}); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(subjectIDs))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
