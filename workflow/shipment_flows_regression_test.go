package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"bitbucket.org/almapacdev/shipments_backend/workflow"
	"github.com/shopspring/decimal"
)

// DB-backed workflow tests against throwaway MySQL + redis containers.
// Set INTEGRATION_TESTS=1 to run them (requires docker). The DB-free
// semantics tests live next to the code under test.

type fakeNav struct{}

func (fakeNav) Push(ctx context.Context, shipment *models.Shipment) (int, error) { return 101, nil }
func (fakeNav) UpdateMagneticCard(ctx context.Context, shipment *models.Shipment) error {
	return nil
}
func (fakeNav) UpdateClientWeight(ctx context.Context, shipment *models.Shipment) error {
	return nil
}

type fakeGate struct{}

func (fakeGate) Push(ctx context.Context, shipment *models.Shipment) (int, error) { return 202, nil }
func (fakeGate) UpdateStatus(ctx context.Context, shipment *models.Shipment, newStatus int) bool {
	return true
}

// scriptedReceipts fails or succeeds on demand so contingency capture and
// the sweep-resolve path can both be driven.
type scriptedReceipts struct {
	mu   sync.Mutex
	fail bool
}

func (s *scriptedReceipts) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *scriptedReceipts) Issue(ctx context.Context, codeGen string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("receipt middleware unreachable")
	}
	return "REC-" + codeGen, nil
}

func createTestShipment(t *testing.T, ctx context.Context, codeGen string) *models.Shipment {
	t.Helper()
	shipment := &models.Shipment{
		CodeGen:           codeGen,
		Product:           "Raw Sugar",
		OperationType:     string(models.OperationTypeLoad),
		LoadType:          string(models.LoadTypeBulk),
		Transporter:       "Transportes del Sur",
		UnitMeasure:       "q",
		ProductQuantity:   decimal.NewFromInt(350),
		ProductQuantityKg: decimal.NewFromInt(35000),
	}
	if err := config.GetDB().WithContext(ctx).Create(shipment).Error; err != nil {
		t.Fatalf("create shipment %s: %v", codeGen, err)
	}
	return shipment
}

func TestShipmentFlowsIntegration(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shipments_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUsernameInContext(ctx, "test@local")

	receipts := &scriptedReceipts{}
	contingency := workflow.NewContingencyQueue(receipts)
	orchestrator := workflow.NewStatusOrchestrator(fakeNav{}, fakeGate{}, receipts, contingency)
	allocator := workflow.NewQueueAllocator(orchestrator)
	engine := workflow.NewUpdateEngine(fakeNav{})

	t.Run("CallSlotHonorsQueueCap", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			if _, err := allocator.CallSlot(ctx, string(models.TruckTypeTanker)); err != nil {
				t.Fatalf("tanker slot %d: %v", i+1, err)
			}
		}
		_, err := allocator.CallSlot(ctx, string(models.TruckTypeTanker))
		if utils.KindOf(err) != utils.KindCapacityExceeded {
			t.Fatalf("sixth tanker slot must exceed the cap, got %v", err)
		}

		released, err := allocator.ReleaseMultiple(ctx, string(models.TruckTypeTanker), 2)
		if err != nil || released != 2 {
			t.Fatalf("release 2: released=%d err=%v", released, err)
		}
		available, err := allocator.AvailableSlots(ctx, string(models.TruckTypeTanker))
		if err != nil || available != 2 {
			t.Fatalf("expected 2 available tanker slots, got %d (err=%v)", available, err)
		}
		_, err = allocator.ReleaseMultiple(ctx, string(models.TruckTypeTanker), 4)
		if utils.KindOf(err) != utils.KindInsufficientSlots {
			t.Fatalf("releasing more than occupied must fail, got %v", err)
		}
	})

	t.Run("CurrentStatusTracksLedger", func(t *testing.T) {
		shipment := createTestShipment(t, ctx, "EXP-IT-0001")

		if _, err := orchestrator.AddStatus(ctx, shipment.CodeGen, models.StatusInTransit, ""); err != nil {
			t.Fatalf("record status 1: %v", err)
		}
		if _, err := orchestrator.AddStatus(ctx, shipment.CodeGen, models.StatusPrechecked, "papers ok"); err != nil {
			t.Fatalf("record status 2: %v", err)
		}

		reloaded, err := models.GetShipmentByCodeGen(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.CurrentStatus == nil || *reloaded.CurrentStatus != models.StatusPrechecked {
			t.Fatalf("current status must follow the newest entry, got %v", reloaded.CurrentStatus)
		}
		if reloaded.DateTimePrecheck == nil {
			t.Fatal("pre-check must stamp date_time_precheckeo")
		}

		removed, err := orchestrator.RemoveStatus(ctx, shipment.CodeGen, models.StatusPrechecked)
		if err != nil || !removed {
			t.Fatalf("remove status 2: removed=%v err=%v", removed, err)
		}
		reloaded, err = models.GetShipmentByCodeGen(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.CurrentStatus == nil || *reloaded.CurrentStatus != models.StatusInTransit {
			t.Fatalf("removal must resync current status to the remaining entry, got %v", reloaded.CurrentStatus)
		}
	})

	t.Run("EnsureStatusOrderRepairsAndIsIdempotent", func(t *testing.T) {
		shipment := createTestShipment(t, ctx, "EXP-IT-0002")
		db := config.GetDB()

		// Lower id carries the later timestamp: storage order disagrees
		// with creation time.
		late := utils.Now()
		early := late.Add(-time.Hour)
		rows := []models.Status{
			{ShipmentId: shipment.ID, PredefinedStatusId: models.StatusWeighIn, CreatedAt: late, UpdatedAt: late},
			{ShipmentId: shipment.ID, PredefinedStatusId: models.StatusInTransit, CreatedAt: early, UpdatedAt: early},
		}
		for i := range rows {
			if err := db.WithContext(ctx).Create(&rows[i]).Error; err != nil {
				t.Fatalf("seed status row: %v", err)
			}
		}

		if err := orchestrator.EnsureStatusOrder(ctx, shipment.CodeGen); err != nil {
			t.Fatalf("repair: %v", err)
		}
		repaired, err := orchestrator.GetStatuses(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("fetch ledger: %v", err)
		}
		if len(repaired) != 2 ||
			repaired[0].PredefinedStatusId != models.StatusInTransit ||
			repaired[1].PredefinedStatusId != models.StatusWeighIn {
			t.Fatalf("storage order must follow creation time after repair: %+v", repaired)
		}
		reloaded, err := models.GetShipmentByCodeGen(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.CurrentStatus == nil || *reloaded.CurrentStatus != models.StatusWeighIn {
			t.Fatalf("current status must resync to the newest entry, got %v", reloaded.CurrentStatus)
		}

		// Second repair is a no-op: same rows, same ids.
		firstIds := []int{repaired[0].ID, repaired[1].ID}
		if err := orchestrator.EnsureStatusOrder(ctx, shipment.CodeGen); err != nil {
			t.Fatalf("second repair: %v", err)
		}
		again, err := orchestrator.GetStatuses(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("fetch ledger: %v", err)
		}
		if len(again) != 2 || again[0].ID != firstIds[0] || again[1].ID != firstIds[1] {
			t.Fatalf("repair must be idempotent: had ids %v, got %+v", firstIds, again)
		}
	})

	t.Run("ReceiptFailureLandsInContingencyAndSweepResolves", func(t *testing.T) {
		shipment := createTestShipment(t, ctx, "EXP-IT-0003")
		if _, err := orchestrator.AddStatus(ctx, shipment.CodeGen, models.StatusInTransit, ""); err != nil {
			t.Fatalf("record status 1: %v", err)
		}

		receipts.setFail(true)
		if _, err := orchestrator.AddStatus(ctx, shipment.CodeGen, models.StatusReceiptIssued, ""); err != nil {
			t.Fatalf("record status 12: %v", err)
		}

		// The receipt push is fire-and-forget; wait for the capture.
		var record *models.ContingencyTransaction
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			records, err := models.GetUnresolvedContingencies(ctx)
			if err != nil {
				t.Fatalf("list contingencies: %v", err)
			}
			if len(records) == 1 && records[0].CodeGen == shipment.CodeGen {
				record = records[0]
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if record == nil {
			t.Fatal("failed receipt push was not captured for contingency retry")
		}
		if record.RetryCount != 0 || record.StatusId != models.StatusReceiptIssued {
			t.Fatalf("fresh capture must carry retryCount=0 and the receipt status, got %+v", record)
		}

		// A failing sweep bumps the counter and keeps the record open.
		contingency.ResendPending(ctx)
		records, err := models.GetUnresolvedContingencies(ctx)
		if err != nil || len(records) != 1 {
			t.Fatalf("record must stay open after a failed sweep: %v (err=%v)", records, err)
		}
		if records[0].RetryCount != 1 || records[0].LastTry == nil {
			t.Fatalf("failed sweep must record the attempt, got %+v", records[0])
		}

		// A successful sweep resolves it and stamps the document code.
		receipts.setFail(false)
		contingency.ResendPending(ctx)
		records, err = models.GetUnresolvedContingencies(ctx)
		if err != nil || len(records) != 0 {
			t.Fatalf("record must resolve after a successful sweep: %v (err=%v)", records, err)
		}
		reloaded, err := models.GetShipmentByCodeGen(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.ExcaliburDocCode == nil || *reloaded.ExcaliburDocCode != "REC-"+shipment.CodeGen {
			t.Fatalf("resolved sweep must persist the document code, got %v", reloaded.ExcaliburDocCode)
		}
		var resolved models.ContingencyTransaction
		if err := config.GetDB().WithContext(ctx).Where("id = ?", record.ID).First(&resolved).Error; err != nil {
			t.Fatalf("fetch resolved record: %v", err)
		}
		if resolved.RetryCount != 2 {
			t.Fatalf("the resolving attempt counts too, want retryCount=2, got %d", resolved.RetryCount)
		}
	})

	t.Run("InconsistencyReportAndRestore", func(t *testing.T) {
		shipment := createTestShipment(t, ctx, "EXP-IT-0004")
		if _, err := orchestrator.AddStatus(ctx, shipment.CodeGen, models.StatusInTransit, ""); err != nil {
			t.Fatalf("record status 1: %v", err)
		}

		comments := "tare weight contradicts the scale ticket"
		record, err := orchestrator.ReportInconsistency(ctx, shipment.CodeGen, "WEIGHT_MISMATCH", &comments)
		if err != nil {
			t.Fatalf("report inconsistency: %v", err)
		}
		reloaded, err := models.GetShipmentByCodeGen(ctx, shipment.CodeGen)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.CurrentStatus == nil || *reloaded.CurrentStatus != models.StatusInconsistency {
			t.Fatalf("report must move the shipment to the inconsistency status, got %v", reloaded.CurrentStatus)
		}

		// Fixing the data through the update engine restores the previous
		// status and marks the report handled.
		time.Sleep(200 * time.Millisecond)
		transporter := "Transportes La Union"
		updated, err := engine.UpdateShipment(ctx, shipment.ID, &workflow.ShipmentPatch{
			Transporter: &transporter,
		}, nil)
		if err != nil {
			t.Fatalf("restoring update: %v", err)
		}
		if updated.CurrentStatus == nil || *updated.CurrentStatus != models.StatusInTransit {
			t.Fatalf("update must restore the pre-inconsistency status, got %v", updated.CurrentStatus)
		}
		if updated.Transporter != transporter {
			t.Fatalf("patch must apply alongside the restore, got %q", updated.Transporter)
		}

		reports, err := models.GetDataInconsistencies(config.GetDB().WithContext(ctx), shipment.ID)
		if err != nil || len(reports) != 1 {
			t.Fatalf("expected the single report, got %v (err=%v)", reports, err)
		}
		if !reports[0].UpdatedAt.After(record.CreatedAt) {
			t.Fatalf("restore must stamp the report handled: created=%v updated=%v",
				record.CreatedAt, reports[0].UpdatedAt)
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shipments-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shipments-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=shipments_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
