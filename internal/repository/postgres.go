// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrShopNotFound возвращается, если магазин не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderStateChanged возвращается, если статус заказа изменился конкурентно
	// и условное обновление не затронуло ни одной строки.
	ErrOrderStateChanged = errors.New("order status changed concurrently")
	// ErrCancellationNotFound возвращается, если запрос на отмену не найден.
	ErrCancellationNotFound = errors.New("cancellation not found")
	// ErrCancellationResolved возвращается при повторной резолюции запроса на отмену.
	ErrCancellationResolved = errors.New("cancellation already resolved")
	// ErrReturnNotFound возвращается, если запрос на возврат не найден.
	ErrReturnNotFound = errors.New("return not found")
	// ErrReturnProcessed возвращается при повторной обработке уже одобренного возврата.
	ErrReturnProcessed = errors.New("return already processed")
	// ErrPayoutNotFound возвращается, если выплата не найдена.
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrPayoutProcessed возвращается при повторной обработке выплаты.
	ErrPayoutProcessed = errors.New("payout already processed")
	// ErrNotificationNotFound возвращается, если уведомление не найдено.
	ErrNotificationNotFound = errors.New("notification not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с указанной ролью.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.UserRole) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, loyalty_cents, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.LoyaltyCents, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.UserRole(role)

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, loyalty_cents, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.LoyaltyCents, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.UserRole(role)

	return &u, nil
}

// CreateShop создаёт магазин продавца.
func (r *PostgresRepository) CreateShop(ctx context.Context, ownerID int64, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO shops (owner_id, name) VALUES ($1, $2) RETURNING id`,
		ownerID, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create shop: %w", err)
	}
	return id, nil
}

// GetShopByOwner возвращает магазин по идентификатору владельца.
func (r *PostgresRepository) GetShopByOwner(ctx context.Context, ownerID int64) (*model.Shop, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, created_at FROM shops WHERE owner_id = $1`,
		ownerID,
	)

	var s model.Shop
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}

	return &s, nil
}

// GetShopByID возвращает магазин по идентификатору.
func (r *PostgresRepository) GetShopByID(ctx context.Context, id int64) (*model.Shop, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, created_at FROM shops WHERE id = $1`,
		id,
	)

	var s model.Shop
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}

	return &s, nil
}

// CreateOrder сохраняет новый заказ в статусе to_pay.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (id, customer_id, shop_id, total_cents, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.CustomerID, o.ShopID, o.TotalCents, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrderByID возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, shop_id, total_cents, status, paid, shipped, delivered, created_at
		 FROM orders WHERE id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &o.ShopID, &o.TotalCents, &status,
		&o.Paid, &o.Shipped, &o.Delivered, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (r *PostgresRepository) selectOrders(ctx context.Context, query string, arg any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetOrdersByCustomer возвращает список заказов покупателя.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT id, customer_id, shop_id, total_cents, status, paid, shipped, delivered, created_at
		 FROM orders
		 WHERE customer_id = $1
		 ORDER BY created_at DESC`,
		customerID,
	)
}

// GetOrdersByShop возвращает список заказов магазина.
func (r *PostgresRepository) GetOrdersByShop(ctx context.Context, shopID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT id, customer_id, shop_id, total_cents, status, paid, shipped, delivered, created_at
		 FROM orders
		 WHERE shop_id = $1
		 ORDER BY created_at DESC`,
		shopID,
	)
}

// orderFlagColumn возвращает вспомогательный флаг заказа, выставляемый
// вместе с переходом в указанный статус.
func orderFlagColumn(next model.OrderStatus) string {
	switch next {
	case model.OrderStatusToShip:
		return "paid"
	case model.OrderStatusToReceive:
		return "shipped"
	case model.OrderStatusCompleted:
		return "delivered"
	}
	return ""
}

// transitionOrderTx выполняет условное обновление статуса заказа внутри транзакции.
// Обновление срабатывает только если текущий статус совпадает с ожидаемым;
// иначе возвращается ErrOrderStateChanged либо ErrOrderNotFound.
func transitionOrderTx(ctx context.Context, tx pgx.Tx, orderID string, expected, next model.OrderStatus) error {
	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`
	if col := orderFlagColumn(next); col != "" {
		query = fmt.Sprintf(`UPDATE orders SET status = $1, %s = TRUE WHERE id = $2 AND status = $3`, col)
	}

	tag, err := tx.Exec(ctx, query, string(next), orderID, string(expected))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var dummy int
		err := tx.QueryRow(ctx, `SELECT 1 FROM orders WHERE id = $1`, orderID).Scan(&dummy)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		return ErrOrderStateChanged
	}

	return nil
}

func insertNotificationTx(ctx context.Context, tx pgx.Tx, n *model.Notification) error {
	if n == nil {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO notifications (recipient_id, title, message, type) VALUES ($1, $2, $3, $4)`,
		n.RecipientID, n.Title, n.Message, n.Type,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ApplyCancellation атомарно создаёт запрос на отмену, переводит заказ в новый
// статус и записывает уведомление владельцу магазина.
func (r *PostgresRepository) ApplyCancellation(ctx context.Context, c *model.OrderCancellation, expected, next model.OrderStatus, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO order_cancellations (id, order_id, reason, detail, status)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.OrderID, c.Reason, c.Detail, string(c.Status),
		)
		if err != nil {
			return fmt.Errorf("insert cancellation: %w", err)
		}

		if err := transitionOrderTx(ctx, tx, c.OrderID, expected, next); err != nil {
			return err
		}

		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetCancellationByID возвращает запрос на отмену по идентификатору.
func (r *PostgresRepository) GetCancellationByID(ctx context.Context, id string) (*model.OrderCancellation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, reason, detail, status, created_at FROM order_cancellations WHERE id = $1`,
		id,
	)

	var c model.OrderCancellation
	var status string
	err := row.Scan(&c.ID, &c.OrderID, &c.Reason, &c.Detail, &status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCancellationNotFound
		}
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	c.Status = model.CancellationStatus(status)

	return &c, nil
}

// ResolveCancellation атомарно выставляет резолюцию отложенной отмены,
// переводит заказ в новый статус и записывает уведомление покупателю.
// Повторная резолюция отклоняется с ErrCancellationResolved.
func (r *PostgresRepository) ResolveCancellation(ctx context.Context, cancellationID, orderID string, resolution model.CancellationStatus, expected, next model.OrderStatus, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`UPDATE order_cancellations SET status = $1 WHERE id = $2 AND status = $3`,
			string(resolution), cancellationID, string(model.CancellationPendingReview),
		)
		if err != nil {
			return fmt.Errorf("update cancellation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var dummy int
			err := tx.QueryRow(ctx, `SELECT 1 FROM order_cancellations WHERE id = $1`, cancellationID).Scan(&dummy)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCancellationNotFound
			}
			if err != nil {
				return fmt.Errorf("check cancellation: %w", err)
			}
			return ErrCancellationResolved
		}

		if err := transitionOrderTx(ctx, tx, orderID, expected, next); err != nil {
			return err
		}

		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ApplyReturn атомарно создаёт запрос на возврат, переводит заказ в статус
// refund_pending и записывает уведомление владельцу магазина.
func (r *PostgresRepository) ApplyReturn(ctx context.Context, ret *model.OrderReturn, expected model.OrderStatus, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO order_returns (id, order_id, reason, method, packaging, proof_urls, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ret.ID, ret.OrderID, ret.Reason, ret.Method, ret.Packaging, ret.ProofURLs, string(ret.Status),
		)
		if err != nil {
			return fmt.Errorf("insert return: %w", err)
		}

		if err := transitionOrderTx(ctx, tx, ret.OrderID, expected, model.OrderStatusRefundPending); err != nil {
			return err
		}

		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetReturnByID возвращает запрос на возврат по идентификатору.
func (r *PostgresRepository) GetReturnByID(ctx context.Context, id string) (*model.OrderReturn, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, reason, method, packaging, proof_urls, status, refund_cents, seller_notes, created_at
		 FROM order_returns WHERE id = $1`,
		id,
	)

	var ret model.OrderReturn
	var status string
	err := row.Scan(&ret.ID, &ret.OrderID, &ret.Reason, &ret.Method, &ret.Packaging,
		&ret.ProofURLs, &status, &ret.RefundCents, &ret.SellerNotes, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReturnNotFound
		}
		return nil, fmt.Errorf("get return: %w", err)
	}
	ret.Status = model.ReturnStatus(status)

	return &ret, nil
}

// ProcessReturnRefund атомарно одобряет возврат, начисляет бонусные баллы
// покупателю, переводит заказ в статус refunded и записывает уведомление.
// Повторная обработка одобренного возврата отклоняется с ErrReturnProcessed,
// поэтому баланс не может быть увеличен дважды.
func (r *PostgresRepository) ProcessReturnRefund(ctx context.Context, returnID, orderID string, customerID, amountCents int64, sellerNotes string, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`UPDATE order_returns SET status = $1, refund_cents = $2, seller_notes = $3
			 WHERE id = $4 AND status = $5`,
			string(model.ReturnApproved), amountCents, sellerNotes, returnID, string(model.ReturnPending),
		)
		if err != nil {
			return fmt.Errorf("update return: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var dummy int
			err := tx.QueryRow(ctx, `SELECT 1 FROM order_returns WHERE id = $1`, returnID).Scan(&dummy)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReturnNotFound
			}
			if err != nil {
				return fmt.Errorf("check return: %w", err)
			}
			return ErrReturnProcessed
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO loyalty_point_transactions (user_id, order_id, amount_cents, kind)
			 VALUES ($1, $2, $3, $4)`,
			customerID, orderID, amountCents, string(model.LoyaltyKindReturnRefund),
		)
		if err != nil {
			return fmt.Errorf("insert loyalty transaction: %w", err)
		}

		// Атомарный инкремент вместо чтения и перезаписи баланса.
		tag, err = tx.Exec(ctx,
			`UPDATE users SET loyalty_cents = loyalty_cents + $1 WHERE id = $2`,
			amountCents, customerID,
		)
		if err != nil {
			return fmt.Errorf("update loyalty balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		if err := transitionOrderTx(ctx, tx, orderID, model.OrderStatusRefundPending, model.OrderStatusRefunded); err != nil {
			return err
		}

		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ApplySellerStatus атомарно переводит заказ в новый статус вместе с
// соответствующим вспомогательным флагом; при переходе в completed
// дополнительно создаётся запись о выплате продавцу.
func (r *PostgresRepository) ApplySellerStatus(ctx context.Context, orderID string, expected, next model.OrderStatus, payout *model.PayoutRecord, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := transitionOrderTx(ctx, tx, orderID, expected, next); err != nil {
			return err
		}

		if payout != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO payout_management
				 (shop_id, order_id, gross_cents, commission_cents, processing_cents, withholding_cents, net_cents, status)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				payout.ShopID, payout.OrderID, payout.GrossCents, payout.CommissionCents,
				payout.ProcessingCents, payout.WithholdingCents, payout.NetCents, string(payout.Status),
			)
			if err != nil {
				return fmt.Errorf("insert payout: %w", err)
			}
		}

		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetPayoutsByShop возвращает журнал выплат магазина.
func (r *PostgresRepository) GetPayoutsByShop(ctx context.Context, shopID int64) ([]model.PayoutRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, shop_id, order_id, gross_cents, commission_cents, processing_cents, withholding_cents, net_cents, status, created_at
		 FROM payout_management
		 WHERE shop_id = $1
		 ORDER BY created_at DESC`,
		shopID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payouts: %w", err)
	}
	defer rows.Close()

	var res []model.PayoutRecord
	for rows.Next() {
		var p model.PayoutRecord
		var status string
		if err := rows.Scan(&p.ID, &p.ShopID, &p.OrderID, &p.GrossCents, &p.CommissionCents,
			&p.ProcessingCents, &p.WithholdingCents, &p.NetCents, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Status = model.PayoutStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPayoutSummary возвращает агрегированные суммы выплат магазина.
func (r *PostgresRepository) GetPayoutSummary(ctx context.Context, shopID int64) (*model.PayoutSummary, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT
		   COALESCE(SUM(net_cents) FILTER (WHERE status = 'pending'), 0),
		   COALESCE(SUM(net_cents) FILTER (WHERE status = 'processed'), 0)
		 FROM payout_management
		 WHERE shop_id = $1`,
		shopID,
	)

	s := model.PayoutSummary{ShopID: shopID}
	if err := row.Scan(&s.PendingCents, &s.ProcessedCents); err != nil {
		return nil, fmt.Errorf("sum payouts: %w", err)
	}

	return &s, nil
}

// MarkPayoutProcessed переводит выплату из pending в processed.
func (r *PostgresRepository) MarkPayoutProcessed(ctx context.Context, payoutID, shopID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payout_management SET status = $1 WHERE id = $2 AND shop_id = $3 AND status = $4`,
		string(model.PayoutProcessed), payoutID, shopID, string(model.PayoutPending),
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var dummy int
		err := r.pool.QueryRow(ctx,
			`SELECT 1 FROM payout_management WHERE id = $1 AND shop_id = $2`, payoutID, shopID,
		).Scan(&dummy)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return fmt.Errorf("check payout: %w", err)
		}
		return ErrPayoutProcessed
	}
	return nil
}

// GetNotificationsByUser возвращает уведомления пользователя, новые первыми.
func (r *PostgresRepository) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, recipient_id, title, message, type, read, created_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkNotificationRead помечает уведомление пользователя прочитанным.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
