// Package influxdb records relay telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Every relay attempt
// the bridge makes becomes one point in the "relay" measurement, tagged by
// direction and result, so delivery rates and failure causes can be graphed
// per direction.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//	client.WriteRelay("broker_to_chat", "ok", len(payload))
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); their
// errors arrive on the SetOnError callback. Connect and HealthCheck return
// errors directly.
package influxdb
