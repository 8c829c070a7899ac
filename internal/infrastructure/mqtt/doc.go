// Package mqtt provides MQTT client connectivity for mqtt-cli.
//
// This package wraps github.com/eclipse/paho.mqtt.golang and manages:
//   - Connection to a broker over tcp:// or ssl://
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament
//   - Classification of disconnects (user-initiated or other)
//
// # Disconnect notification
//
// Each Client reports the end of its connection exactly once through the
// callback set with SetOnDisconnect:
//
//	SourceUser   Disconnect was called; delivered synchronously
//	SourceOther  paho reported connection loss; delivered on paho's goroutine
//
// Auto-reconnect is disabled. A connection that ends is finished; the
// command layer opens a new Client to reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.NewConnectOptions("localhost", 1883, "dev1"))
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	err = client.Subscribe("sensors/#", 1, func(msg mqtt.Message) error {
//	    fmt.Printf("%s: %s\n", msg.Topic, msg.Payload)
//	    return nil
//	})
//
//	client.Publish("sensors/kitchen", []byte("21.5"), 1, false)
package mqtt
