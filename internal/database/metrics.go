package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Unlabeled metrics store empty-string labels. NULL labels would defeat the
// INSERT OR REPLACE upsert because NULLs are distinct in sqlite unique keys.

// SaveMetric persists a non-labeled metric value.
func (d *DB) SaveMetric(metricName string, value float64) error {
	query := `
	INSERT OR REPLACE INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, '', '', ?);`
	if _, err := d.conn.Exec(query, metricName, value); err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// GetMetric reads a non-labeled metric value, defaulting to 0 when absent.
func (d *DB) GetMetric(metricName string) (float64, error) {
	var value float64
	query := `
	SELECT metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key = '' AND label_value = '';`
	err := d.conn.QueryRow(query, metricName).Scan(&value)
	if err == sql.ErrNoRows {
		log.Printf("Metric %s not found in the database, defaulting to 0", metricName)
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get metric %s: %w", metricName, err)
	}
	return value, nil
}

// SaveMetricWithLabels persists one labeled sample of a metric.
func (d *DB) SaveMetricWithLabels(metricName, labelKey, labelValue string, value float64) error {
	query := `
	INSERT OR REPLACE INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, ?, ?, ?);`
	if _, err := d.conn.Exec(query, metricName, labelKey, labelValue, value); err != nil {
		return fmt.Errorf("failed to save metric with labels: %w", err)
	}
	return nil
}

// GetMetricsWithLabels fetches all labeled samples for a given metric name.
func (d *DB) GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error) {
	query := `
	SELECT label_key, label_value, metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key <> '' AND label_value <> '';`

	rows, err := d.conn.Query(query, metricName)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics with labels: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]map[string]float64)
	for rows.Next() {
		var labelKey, labelValue string
		var value float64
		if err := rows.Scan(&labelKey, &labelValue, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if _, exists := metrics[labelKey]; !exists {
			metrics[labelKey] = make(map[string]float64)
		}
		metrics[labelKey][labelValue] = value
	}
	return metrics, rows.Err()
}
