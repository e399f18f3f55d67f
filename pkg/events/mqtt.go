/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"github.com/eschercloudai/site-agent/pkg/constants"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
)

// MQTTOptions configure the broker connection.
type MQTTOptions struct {
	// BrokerURL is the broker endpoint, e.g. "ssl://mq.example.com:8883".
	BrokerURL string

	// ClientID identifies this agent to the broker.  Defaults to the
	// application name.
	ClientID string

	// Username and Password are the broker credentials.
	Username string
	Password string

	// TopicPrefix is prepended to the offering UUID to form the topic.
	TopicPrefix string

	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration
}

func (o *MQTTOptions) defaults() {
	if o.ClientID == "" {
		o.ClientID = constants.Application
	}

	if o.TopicPrefix == "" {
		o.TopicPrefix = "marketplace/offerings"
	}

	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 30 * time.Second
	}
}

// MQTTSubscriber implements Subscriber over an MQTT broker.
type MQTTSubscriber struct {
	options MQTTOptions
	client  mqtt.Client
}

var _ Subscriber = &MQTTSubscriber{}

// NewMQTTSubscriber connects to the broker.  The underlying client
// reconnects and resubscribes on connection loss.
func NewMQTTSubscriber(options MQTTOptions) (*MQTTSubscriber, error) {
	options.defaults()

	if options.BrokerURL == "" {
		return nil, fmt.Errorf("%w: mqtt broker url not set", coreerrors.ErrConfiguration)
	}

	clientOptions := mqtt.NewClientOptions().
		AddBroker(options.BrokerURL).
		SetClientID(options.ClientID).
		SetUsername(options.Username).
		SetPassword(options.Password).
		SetConnectTimeout(options.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetResumeSubs(true)

	client := mqtt.NewClient(clientOptions)

	token := client.Connect()
	if !token.WaitTimeout(options.ConnectTimeout) {
		return nil, coreerrors.Transient(fmt.Errorf("mqtt connect to %s timed out", options.BrokerURL))
	}

	if err := token.Error(); err != nil {
		return nil, coreerrors.Transient(fmt.Errorf("mqtt connect to %s: %w", options.BrokerURL, err))
	}

	return &MQTTSubscriber{
		options: options,
		client:  client,
	}, nil
}

// Subscribe implements the Subscriber interface.  Malformed messages are
// logged and dropped; the marketplace redelivers through the safety
// sweep anyway.
func (s *MQTTSubscriber) Subscribe(ctx context.Context, offeringUUID string, handler Handler) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("offering", offeringUUID)

	topic := s.options.TopicPrefix + "/" + offeringUUID

	callback := func(_ mqtt.Client, message mqtt.Message) {
		event := &Event{}

		if err := json.Unmarshal(message.Payload(), event); err != nil {
			log.Error(err, "dropping malformed event", "topic", message.Topic())

			return
		}

		handler(ctx, event)
	}

	token := s.client.Subscribe(topic, 1, callback)
	token.Wait()

	if err := token.Error(); err != nil {
		return coreerrors.Transient(fmt.Errorf("mqtt subscribe to %s: %w", topic, err))
	}

	log.Info("subscribed", "topic", topic)

	<-ctx.Done()

	if token := s.client.Unsubscribe(topic); token.WaitTimeout(time.Second) {
		if err := token.Error(); err != nil {
			log.Error(err, "mqtt unsubscribe failed", "topic", topic)
		}
	}

	return nil
}

// Close implements the Subscriber interface.
func (s *MQTTSubscriber) Close() {
	// Allow a grace period for in-flight acknowledgements.
	s.client.Disconnect(250)
}
