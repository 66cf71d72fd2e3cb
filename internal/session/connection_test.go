package session_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blec/internal/gatt"
	"github.com/srg/blec/internal/session"
	"github.com/srg/blec/internal/testutils"
)

type ConnectionTestSuite struct {
	testutils.FakeStackSuite
}

func TestConnectionTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionTestSuite))
}

func (suite *ConnectionTestSuite) TestConnectLifecycle() {
	// GOAL: Verify the connect/disconnect state machine and its lifecycle events
	//
	// TEST SCENARIO: Connect → Connected state + connected event → Disconnect → Disconnected state + disconnected event

	events := suite.Notifier.Sink(8)

	sess := suite.Registry.GetOrCreate(testutils.DefaultAddress)
	suite.Assert().Equal(session.StateDisconnected, sess.State(), "fresh session MUST start disconnected")

	err := sess.Connect(suite.Ctx())
	suite.Require().NoError(err, "connect MUST succeed")
	suite.Assert().Equal(session.StateConnected, sess.State(), "state MUST be connected after callback")
	suite.Assert().True(sess.IsConnected(), "IsConnected MUST report true")

	ev := <-events
	suite.Assert().Equal(session.EventConnected, ev.Type, "first event MUST be connected")
	suite.Assert().Equal(testutils.DefaultAddress, ev.Address, "event MUST carry the device address")

	sess.Disconnect()
	suite.Assert().Equal(session.StateDisconnected, sess.State(), "state MUST be disconnected")
	suite.Assert().False(sess.IsConnected(), "IsConnected MUST report false")

	ev = <-events
	suite.Assert().Equal(session.EventDisconnected, ev.Type, "second event MUST be disconnected")
}

func (suite *ConnectionTestSuite) TestConnectAlreadyConnected() {
	// GOAL: Verify connecting a live session fails without touching the native stack again
	//
	// TEST SCENARIO: Connect → second Connect → AlreadyConnected error → connect counter unchanged

	sess := suite.Registry.GetOrCreate(testutils.DefaultAddress)
	suite.Require().NoError(sess.Connect(suite.Ctx()), "first connect MUST succeed")
	before := suite.Stack.Counters().Connect

	err := sess.Connect(suite.Ctx())

	suite.Assert().ErrorIs(err, session.ErrAlreadyConnected, "second connect MUST fail with AlreadyConnected")
	suite.Assert().Equal(before, suite.Stack.Counters().Connect, "no native connect MUST be issued")
}

func (suite *ConnectionTestSuite) TestConnectUnknownDevice() {
	// GOAL: Verify a failed connect attempt surfaces the stack status and resets the state
	//
	// TEST SCENARIO: Connect to an address with no peripheral → platform status error → state back to disconnected

	sess := suite.Registry.GetOrCreate("11:22:33:44:55:66")

	err := sess.Connect(suite.Ctx())

	suite.Require().Error(err, "connect MUST fail")
	_, ok := session.IsPlatformStatus(err)
	suite.Assert().True(ok, "error MUST carry the native status")
	suite.Assert().Equal(session.StateDisconnected, sess.State(), "state MUST return to disconnected")
}

func (suite *ConnectionTestSuite) TestDisconnectIdempotent() {
	// GOAL: Verify disconnect always succeeds and repeats are no-ops
	//
	// TEST SCENARIO: Connect → Disconnect twice → exactly one disconnected event → state stays disconnected

	sess := suite.ConnectedSession()
	events := suite.Notifier.Sink(8)

	sess.Disconnect()
	sess.Disconnect()

	ev := <-events
	suite.Assert().Equal(session.EventDisconnected, ev.Type, "MUST emit one disconnected event")
	select {
	case extra, ok := <-events:
		if ok {
			suite.Fail("unexpected extra event", "got %v", extra)
		}
	default:
	}
	suite.Assert().Equal(session.StateDisconnected, sess.State(), "state MUST stay disconnected")
}

func (suite *ConnectionTestSuite) TestUnsolicitedDropClearsState() {
	// GOAL: Verify an unsolicited link loss resets the session like an explicit disconnect
	//
	// TEST SCENARIO: Connect + discover → stack reports drop → state disconnected, services cleared, event emitted

	sess := suite.ConnectedSession()
	suite.Require().NotEmpty(sess.Services(), "discovery MUST have populated services")
	events := suite.Notifier.Sink(8)

	suite.Stack.DropConnection(testutils.DefaultAddress)

	suite.Assert().Equal(session.StateDisconnected, sess.State(), "state MUST be disconnected after drop")
	suite.Assert().Empty(sess.Services(), "discovered services MUST be cleared")

	_, err := sess.Characteristic("2A19")
	var notFound *session.NotFoundError
	suite.Assert().ErrorAs(err, &notFound, "characteristic index MUST be cleared")

	ev := <-events
	suite.Assert().Equal(session.EventDisconnected, ev.Type, "drop MUST emit a disconnected event")
}

func (suite *ConnectionTestSuite) TestStaleConnectSuccessAfterWithdrawal() {
	// GOAL: Verify a dial that succeeds after its attempt was withdrawn does not resurrect the session
	//
	// TEST SCENARIO: No connect pending → stack reports a connected transition → session stays down,
	// the unwanted link is torn back down, no lifecycle event

	sess := suite.Registry.GetOrCreate(testutils.DefaultAddress)
	events := suite.Notifier.Sink(8)

	sess.HandleConnectionStateChange(&testutils.FakeConn{Addr: testutils.DefaultAddress}, gatt.StatusSuccess, gatt.StateConnected)

	suite.Assert().Equal(session.StateDisconnected, sess.State(), "session MUST NOT flip to connected")
	suite.Assert().False(sess.IsConnected(), "IsConnected MUST stay false")
	suite.Assert().Equal(1, suite.Stack.Counters().Disconnect, "unwanted link MUST be closed")
	select {
	case ev := <-events:
		suite.Fail("no lifecycle event MUST be emitted", "got %v", ev)
	default:
	}
}

func (suite *ConnectionTestSuite) TestReconnectAfterDisconnect() {
	// GOAL: Verify a session is reusable after teardown
	//
	// TEST SCENARIO: Connect → Disconnect → Connect again → second attempt succeeds

	sess := suite.Registry.GetOrCreate(testutils.DefaultAddress)
	suite.Require().NoError(sess.Connect(suite.Ctx()), "connect MUST succeed")

	sess.Disconnect()

	suite.Assert().Equal(session.StateDisconnected, sess.State(), "state MUST be disconnected")
	suite.Assert().NoError(sess.Connect(suite.Ctx()), "reconnect after disconnect MUST succeed")
}
