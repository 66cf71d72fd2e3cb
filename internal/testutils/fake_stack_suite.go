package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blec/internal/session"
)

// FakeStackSuite is a reusable testify suite wired to an in-memory GATT
// stack. It assembles the full callback pipeline (registry, dispatcher,
// notifier, router) per test so suites exercise the same plumbing production
// uses, just against FakeStack instead of a radio.
//
// Basic usage (default battery-service peripheral):
//
//	type ReadSuite struct {
//	    testutils.FakeStackSuite
//	}
//
//	func TestReadSuite(t *testing.T) {
//	    suite.Run(t, new(ReadSuite))
//	}
//
// Custom profile usage: override SetupTest, configure peripherals through
// WithPeripheral, then call the parent.
//
//	func (s *CustomSuite) SetupTest() {
//	    s.WithPeripheral(
//	        testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").
//	            WithService("180D").
//	            WithCharacteristic("2A37", "read,notify", []byte{80}))
//	    s.FakeStackSuite.SetupTest()
//	}
type FakeStackSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Stack    *FakeStack
	Notifier *session.Notifier
	Router   *session.Router
	Registry *session.Registry

	TestTimeout time.Duration

	pending []*PeripheralBuilder
}

// DefaultAddress is the address of the peripheral installed when a test
// configures nothing of its own.
const DefaultAddress = "AA:BB:CC:DD:EE:FF"

// WithPeripheral queues a builder to be materialized by SetupTest.
func (s *FakeStackSuite) WithPeripheral(b *PeripheralBuilder) *PeripheralBuilder {
	s.pending = append(s.pending, b)
	return b
}

func (s *FakeStackSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.TestTimeout == 0 {
		s.TestTimeout = 5 * time.Second
	}

	s.Stack = NewFakeStack()
	s.Notifier = session.NewNotifier(s.Logger)
	s.Router = session.NewRouter(s.Logger)
	s.Registry = session.NewRegistry(s.Stack, s.Notifier, s.Logger)
	s.Stack.SetCallbacks(session.NewDispatcher(s.Registry, s.Router, s.Logger))

	if len(s.pending) == 0 {
		// Battery service with a readable, notifiable level characteristic.
		s.pending = append(s.pending,
			NewPeripheralBuilder(DefaultAddress).
				WithName("MockDevice").
				WithService("180F").
				WithCharacteristic("2A19", "read,notify", []byte{85}))
	}
	for _, b := range s.pending {
		s.Stack.AddPeripheral(b.Build())
	}
	s.pending = nil
}

// Ctx returns a context bounded by the suite timeout, cancelled at test end.
func (s *FakeStackSuite) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}

// ConnectedSession connects the default peripheral, discovers its services
// and returns the live session. Fails the test on any error.
func (s *FakeStackSuite) ConnectedSession() *session.Session {
	return s.ConnectedSessionAt(DefaultAddress)
}

// ConnectedSessionAt connects the peripheral at the given address, discovers
// its services and returns the live session.
func (s *FakeStackSuite) ConnectedSessionAt(address string) *session.Session {
	sess := s.Registry.GetOrCreate(address)
	s.Require().NoError(sess.Connect(s.Ctx()), "connect MUST succeed")
	_, err := sess.DiscoverServices(s.Ctx())
	s.Require().NoError(err, "discovery MUST succeed")
	return sess
}
