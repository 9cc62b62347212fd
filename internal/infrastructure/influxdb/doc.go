// Package influxdb records rocker activity in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//
//	enocean_button  tags device_id, position, button   field pressed
//	enocean_toggle  tags device_id, position, switch, address
//	                fields result, value (only when a value was written)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Every point is tagged bridge=enocean and, when set, with
// the site ID. Asynchronous write failures are delivered to Options.OnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{Site: cfg.Site.ID})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteButtonState(influxdb.ButtonState{Device: "00A1B2C3", Position: "AI", Pressed: true})
package influxdb
