package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/daysummary"
	"github.com/fuelstation/backoffice/jobs"
)

type stubSummarizer struct {
	requested time.Time
	summary   daysummary.DaySummary
	err       error
}

func (s *stubSummarizer) SummarizeDay(ctx context.Context, date time.Time) (daysummary.DaySummary, error) {
	s.requested = date
	s.summary.Date = date
	return s.summary, s.err
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func sampleSummary() daysummary.DaySummary {
	dip := dec("6750")
	variation := dec("5")
	variationAmount := dec("467.15")
	return daysummary.DaySummary{
		Products: []daysummary.ProductSummary{{
			ProductID:   1,
			ProductName: "Petrol",
			Rate:        dec("93.43"),
			SaleAmount:  dec("22890.35"),
			StockLine: daysummary.StockLine{
				MeterSales:      dec("245"),
				BookClosing:     dec("6755"),
				DipClosing:      &dip,
				VariationVolume: &variation,
				VariationAmount: &variationAmount,
			},
		}},
		Settlement: daysummary.Settlement{
			CashInHand:     dec("30176.15"),
			HandedOver:     dec("29700"),
			Adjustments:    dec("300"),
			CashDifference: dec("176.15"),
		},
	}
}

func TestSummarizeHumanOutput(t *testing.T) {
	svc := &stubSummarizer{summary: sampleSummary()}
	cmd, err := NewSummarizeCLI(svc)
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cmd.Run(context.Background(), SummarizeOptions{Date: "2024-03-01", Stdout: stdout, Stderr: stderr})

	require.Equal(t, 10, code)
	require.Empty(t, stderr.String())
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), svc.requested)
	out := stdout.String()
	require.Contains(t, out, "Day summary 2024-03-01")
	require.Contains(t, out, "30,176.15")
	require.Contains(t, out, "22,890.35")
	require.Contains(t, out, "variation 5.000 (467.15)")
}

func TestSummarizeJSONOutput(t *testing.T) {
	summary := sampleSummary()
	summary.Settlement.CashDifference = dec("-20")
	cmd, err := NewSummarizeCLI(&stubSummarizer{summary: summary})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cmd.Run(context.Background(), SummarizeOptions{Date: "2024-03-01", JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)

	var decoded daysummary.DaySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.True(t, decoded.Settlement.CashInHand.Equal(dec("30176.15")))
}

func TestSummarizeResolvesRelativeDates(t *testing.T) {
	svc := &stubSummarizer{}
	cmd, err := NewSummarizeCLI(svc)
	require.NoError(t, err)
	cmd.now = func() time.Time { return time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC) }
	ist := time.FixedZone("IST", 5*3600+1800)

	code := cmd.Run(context.Background(), SummarizeOptions{Date: "yesterday", Location: ist, Stdout: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), svc.requested)

	code = cmd.Run(context.Background(), SummarizeOptions{Location: ist, Stdout: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), svc.requested)
}

func TestSummarizeErrors(t *testing.T) {
	_, err := NewSummarizeCLI(nil)
	require.Error(t, err)

	cmd, err := NewSummarizeCLI(&stubSummarizer{err: errors.New("redis down")})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cmd.Run(context.Background(), SummarizeOptions{Date: "01/03/2024", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid date")

	stderr.Reset()
	require.Equal(t, 1, cmd.Run(context.Background(), SummarizeOptions{Date: "2024-03-01", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "redis down")
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return s.info, nil }

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{Type: jobs.TaskDaySummarize, Queue: queue}}, nil
}

func (s stubInspector) Close() error { return nil }

func TestJobsTrigger(t *testing.T) {
	queue := &recordingEnqueuer{}
	c := &JobsCLI{client: queue, inspector: stubInspector{}}

	info, err := c.Trigger(context.Background(), jobs.TaskDaySummarize, TriggerOptions{Date: "2024-03-01"})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDaySummarize, info.Type)
	var payload jobs.DaySummarizePayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, "2024-03-01", payload.Date)

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: 48 * time.Hour})
	require.NoError(t, err)
	var cleanup jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(queue.tasks[1].Payload(), &cleanup))
	require.Equal(t, 48, cleanup.RetentionHours)

	_, err = c.Trigger(context.Background(), jobs.TaskDaySummarize, TriggerOptions{Date: "March 1"})
	require.ErrorContains(t, err, "invalid date")
	_, err = c.Trigger(context.Background(), "ledger:rebuild", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")
	require.Len(t, queue.tasks, 2)
}

func TestJobsInspectQueue(t *testing.T) {
	c := &JobsCLI{client: &recordingEnqueuer{}, inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}}}

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, stats)

	scheduled, err := c.ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	require.NoError(t, c.Close())
}
