// Package influxdb records Tally time series in InfluxDB v2.
//
// Two measurements are written:
//   - counter: every committed counter value, tagged by key and by the
//     surface that changed it (api, mqtt)
//   - database_actor: periodic snapshots of the database actor's queue
//     depths and call counters
//
// Writes are non-blocking and batched by influxdb-client-go. Failures are
// delivered asynchronously and logged; they never fail the caller.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCounter(key, 11, "api")
//	go client.ReportStats(ctx, 30*time.Second, db)
package influxdb
