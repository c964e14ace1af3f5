package warehouse

const companiesDDL = `
CREATE TABLE IF NOT EXISTS tech_companies (
  symbol          varchar(50) PRIMARY KEY,
  company_name    varchar(500),
  industry        varchar(100),
  country         varchar(10),
  country_name    varchar(100),
  region          varchar(50),
  exchange_code   varchar(20),
  ticker          varchar(50),
  exchange_name   varchar(200),
  category        varchar(100),
  article_count   integer NOT NULL DEFAULT 0,
  avg_sentiment   double precision NOT NULL DEFAULT 0,
  quality_score   double precision NOT NULL,
  is_complete     boolean NOT NULL,
  record_hash     varchar(64) NOT NULL,
  source_page     integer NOT NULL,
  etl_run_id      varchar(64) NOT NULL,
  etl_timestamp   timestamptz NOT NULL,
  created_at      timestamptz NOT NULL DEFAULT now(),
  updated_at      timestamptz NOT NULL DEFAULT now()
);
`

const stagingDDL = `
CREATE TABLE IF NOT EXISTS tech_companies_staging (
  LIKE tech_companies INCLUDING DEFAULTS
);
`

const auditDDL = `
CREATE TABLE IF NOT EXISTS etl_audit (
  audit_id          bigserial PRIMARY KEY,
  run_id            varchar(64) NOT NULL,
  stage             varchar(20) NOT NULL,
  status            varchar(10) NOT NULL,
  records_processed integer NOT NULL,
  duration_seconds  double precision NOT NULL,
  error_detail      text,
  created_at        timestamptz NOT NULL DEFAULT now()
);
`

const metricsDDL = `
CREATE TABLE IF NOT EXISTS data_quality_metrics (
  metric_id    bigserial PRIMARY KEY,
  run_id       varchar(64) NOT NULL,
  metric_name  varchar(100) NOT NULL,
  metric_value double precision NOT NULL,
  created_at   timestamptz NOT NULL DEFAULT now()
);
`

// loadColumns lists the tech_companies columns written during a load, in
// CopyFrom order. created_at/updated_at come from column defaults.
var loadColumns = []string{
	"symbol", "company_name", "industry",
	"country", "country_name", "region",
	"exchange_code", "ticker", "exchange_name",
	"category", "article_count", "avg_sentiment",
	"quality_score", "is_complete", "record_hash",
	"source_page", "etl_run_id", "etl_timestamp",
}

const mergeSQL = `
INSERT INTO tech_companies (
  symbol, company_name, industry,
  country, country_name, region,
  exchange_code, ticker, exchange_name,
  category, article_count, avg_sentiment,
  quality_score, is_complete, record_hash,
  source_page, etl_run_id, etl_timestamp
)
SELECT
  symbol, company_name, industry,
  country, country_name, region,
  exchange_code, ticker, exchange_name,
  category, article_count, avg_sentiment,
  quality_score, is_complete, record_hash,
  source_page, etl_run_id, etl_timestamp
FROM tech_companies_staging
ON CONFLICT (symbol) DO UPDATE SET
  company_name  = EXCLUDED.company_name,
  industry      = EXCLUDED.industry,
  country       = EXCLUDED.country,
  country_name  = EXCLUDED.country_name,
  region        = EXCLUDED.region,
  exchange_code = EXCLUDED.exchange_code,
  ticker        = EXCLUDED.ticker,
  exchange_name = EXCLUDED.exchange_name,
  category      = EXCLUDED.category,
  article_count = EXCLUDED.article_count,
  avg_sentiment = EXCLUDED.avg_sentiment,
  quality_score = EXCLUDED.quality_score,
  is_complete   = EXCLUDED.is_complete,
  record_hash   = EXCLUDED.record_hash,
  source_page   = EXCLUDED.source_page,
  etl_run_id    = EXCLUDED.etl_run_id,
  etl_timestamp = EXCLUDED.etl_timestamp,
  updated_at    = now()
WHERE tech_companies.record_hash IS DISTINCT FROM EXCLUDED.record_hash;
`
