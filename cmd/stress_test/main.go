package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/supply-share/internal/adapter/storage"
	"github.com/rl1809/supply-share/internal/config"
	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/core/service"
)

const (
	ownerID         = 1
	productID       = 1
	orderedQuantity = 20
	totalRequests   = 50
	maxTries        = 8
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db, cfg.LockWaitTimeout)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)

	// Fresh order per run
	orderID := time.Now().Unix()
	err = mysqlAdapter.UpsertPurchaseOrder(ctx,
		domain.PurchaseOrder{ID: orderID, OwnerID: ownerID, Status: domain.PurchaseOrderStatusConfirmed},
		[]domain.PurchaseOrderLine{{OrderID: orderID, ProductID: productID, OrderedQuantity: orderedQuantity}},
	)
	if err != nil {
		log.Fatalf("failed to seed order: %v", err)
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	links := service.NewShareLinkService(mysqlAdapter, mysqlAdapter, nil, quiet, service.ShareLinkOptions{
		DefaultTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	gateway := service.NewAccessGateway(links, service.NewVisitorTracker(mysqlAdapter, quiet), nil, quiet, cfg.RequestTimeout)
	validator := service.NewQuantityValidator(mysqlAdapter, mysqlAdapter)
	records := service.NewSupplyRecordService(gateway, validator, mysqlAdapter, mysqlAdapter, redisAdapter, nil, quiet, cfg.RequestTimeout)

	created, err := links.Create(ctx, service.CreateShareLinkInput{
		PurchaseOrderID: orderID,
		Actor:           ownerID,
		UseExtractCode:  true,
	})
	if err != nil {
		log.Fatalf("failed to create share link: %v", err)
	}

	// Counters
	var successCount, rejectedCount, failCount atomic.Int32

	// Spawn concurrent suppliers, each claiming one unit
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(supplier int) {
			defer wg.Done()

			_, err := records.SubmitWithRetry(ctx, service.SubmitInput{
				PurchaseOrderID: orderID,
				ShareCode:       created.Link.ShareCode,
				ExtractCode:     created.ExtractCode,
				Fingerprint:     fmt.Sprintf("stress-supplier-%d", supplier),
				RequestID:       uuid.NewString(),
				Supplier:        domain.SupplierInfo{Name: fmt.Sprintf("supplier-%d", supplier)},
				Items:           []service.SubmitItem{{ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
			}, maxTries)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientQuantity):
				rejectedCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("supplier %d: %v", supplier, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Ordered Quantity: %d\n", orderedQuantity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Admitted:         %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == orderedQuantity && rejected == totalRequests-orderedQuantity {
		fmt.Printf("PASS: Exactly %d claims admitted, %d rejected\n", orderedQuantity, totalRequests-orderedQuantity)
	} else {
		fmt.Printf("FAIL: Expected %d admitted/%d rejected, got %d/%d\n",
			orderedQuantity, totalRequests-orderedQuantity, success, rejected)
	}

	availability, err := validator.AvailableQuantities(ctx, orderID)
	if err != nil {
		log.Fatalf("failed to read availability: %v", err)
	}
	for _, row := range availability {
		fmt.Printf("Product %d: claimed %d, available %d\n", row.ProductID, row.ClaimedQuantity, row.AvailableQuantity)
		if row.ClaimedQuantity > row.OrderedQuantity {
			fmt.Println("FAIL: oversold")
		} else if row.AvailableQuantity == 0 {
			fmt.Println("PASS: Quantity fully claimed, no oversell")
		}
	}
}
