package storage

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		stripe_price_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(320) COLLATE utf8mb4_bin NOT NULL,
		stripe_customer_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_customers_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id VARCHAR(64) PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL,
		customer_id BIGINT NOT NULL,
		student_name VARCHAR(255) NULL,
		scanned_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_tickets_event (event_id),
		INDEX idx_tickets_customer (customer_id),
		INDEX idx_tickets_created (created_at),
		CONSTRAINT fk_tickets_event FOREIGN KEY (event_id) REFERENCES events (id),
		CONSTRAINT fk_tickets_customer FOREIGN KEY (customer_id) REFERENCES customers (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		stripe_price_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events (id),
		customer_id INTEGER NOT NULL REFERENCES customers (id),
		student_name TEXT,
		scanned_at DATETIME,
		created_at DATETIME NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets (event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets (customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets (created_at)`,
}
