// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

func TestCourierTestSuite(t *testing.T) {
	suite.Run(t, new(CourierTestSuite))
}

type CourierTestSuite struct {
	suite.Suite

	exchanger *MockExchanger
	transport *MockTransport
	courier   *Courier
	sender    mails.Address
}

func (s *CourierTestSuite) SetupTest() {
	s.exchanger = new(MockExchanger)
	s.transport = new(MockTransport)
	s.courier = NewCourier(s.exchanger, s.transport)
	s.sender = address(s.T(), "alice@example.com")
}

func (s *CourierTestSuite) TearDownTest() {
	s.courier.Close()

	s.exchanger.AssertExpectations(s.T())
	s.transport.AssertExpectations(s.T())
}

func (s *CourierTestSuite) parcel(entry *testEntry) *Parcel {
	return &Parcel{
		Header: []byte("Return-Path: <alice@example.com>\r\n"),
		Entry:  entry,
	}
}

func (s *CourierTestSuite) TestDispatch() {
	entry := newTestEntry("Subject: Hello\r\n\r\nHi.\r\n")

	s.exchanger.
		On("Exchange", mock.Anything, "foo.com").
		Return(nil, "mx.foo.com", nil)
	s.transport.
		On("Send", mock.Anything, mock.Anything, "mx.foo.com",
			s.sender,
			address(s.T(), "ext@foo.com"),
			[]byte("X-Forwarded-To: ext@foo.com\r\n"+
				"X-Forwarded-For: user@domain ext@foo.com\r\n"+
				"Delivered-To: user@domain\r\n"+
				"Return-Path: <alice@example.com>\r\n"+
				"Subject: Hello\r\n\r\nHi.\r\n")).
		Return(nil)

	batch := s.courier.Dispatch(context.TODO(), s.sender,
		[]mails.ForwardTarget{target(s.T(), "user@domain", "ext@foo.com")},
		s.parcel(entry))

	attempts := batch.Wait()
	s.Require().Len(attempts, 1)

	s.Equal(StateDelivered, attempts[0].State)
	s.Equal("mx.foo.com", attempts[0].Host)
	s.NoError(attempts[0].Err)
	s.False(attempts[0].Finished.Before(attempts[0].Started))
	s.Equal(1, entry.releaseCount())
}

func (s *CourierTestSuite) TestDispatchFoldsLongForwardedFor() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")

	s.exchanger.
		On("Exchange", mock.Anything, "destination.example").
		Return(nil, "mx.destination.example", nil)
	s.transport.
		On("Send", mock.Anything, mock.Anything, "mx.destination.example",
			s.sender,
			address(s.T(), "a-rather-long-target-name@destination.example"),
			[]byte("X-Forwarded-To: a-rather-long-target-name@destination.example\r\n"+
				"X-Forwarded-For: a-rather-long-alias-name@relay-domain.example\r\n"+
				" a-rather-long-target-name@destination.example\r\n"+
				"Delivered-To: a-rather-long-alias-name@relay-domain.example\r\n"+
				"Return-Path: <alice@example.com>\r\n"+
				"Subject: Hello\r\n\r\n")).
		Return(nil)

	batch := s.courier.Dispatch(context.TODO(), s.sender,
		[]mails.ForwardTarget{target(s.T(),
			"a-rather-long-alias-name@relay-domain.example",
			"a-rather-long-target-name@destination.example")},
		s.parcel(entry))

	attempts := batch.Wait()
	s.Require().Len(attempts, 1)
	s.Equal(StateDelivered, attempts[0].State)
}

func (s *CourierTestSuite) TestDispatchExchangeFailure() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")

	s.exchanger.
		On("Exchange", mock.Anything, "foo.com").
		Return(nil, "", ErrNullMX)

	batch := s.courier.Dispatch(context.TODO(), s.sender,
		[]mails.ForwardTarget{target(s.T(), "user@domain", "ext@foo.com")},
		s.parcel(entry))

	attempts := batch.Wait()
	s.Require().Len(attempts, 1)

	s.Equal(StateFailed, attempts[0].State)
	s.ErrorIs(attempts[0].Err, ErrNullMX)
	s.Empty(attempts[0].Host)
	s.transport.AssertNotCalled(s.T(), "Send")
	s.Equal(1, entry.releaseCount())
}

func (s *CourierTestSuite) TestDispatchIsolatesFailures() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")

	s.exchanger.
		On("Exchange", mock.Anything, "foo.com").
		Return(nil, "mx.foo.com", nil)
	s.exchanger.
		On("Exchange", mock.Anything, "bar.com").
		Return(nil, "mx.bar.com", nil)
	s.transport.
		On("Send", mock.Anything, mock.Anything, "mx.foo.com",
			mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))
	s.transport.
		On("Send", mock.Anything, mock.Anything, "mx.bar.com",
			mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	batch := s.courier.Dispatch(context.TODO(), s.sender,
		[]mails.ForwardTarget{
			target(s.T(), "user@domain", "ext1@foo.com"),
			target(s.T(), "user@domain", "ext2@bar.com"),
		},
		s.parcel(entry))

	attempts := batch.Wait()
	s.Require().Len(attempts, 2)

	s.Equal("ext1@foo.com", attempts[0].Target.Target.String())
	s.Equal(StateFailed, attempts[0].State)
	s.EqualError(attempts[0].Err, "connection reset")

	s.Equal("ext2@bar.com", attempts[1].Target.Target.String())
	s.Equal(StateDelivered, attempts[1].State)

	s.NotEqual(attempts[0].ID, attempts[1].ID)
	s.Equal(1, entry.releaseCount())
}

func (s *CourierTestSuite) TestDispatchWithoutTargets() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")

	batch := s.courier.Dispatch(context.TODO(), s.sender, nil, s.parcel(entry))

	s.Empty(batch.Wait())
	s.Equal(1, entry.releaseCount())
}

func (s *CourierTestSuite) TestDispatchOutlivesCanceledContext() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")

	s.exchanger.
		On("Exchange", mock.Anything, "foo.com").
		Return(nil, "mx.foo.com", nil)
	s.transport.
		On("Send", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := s.courier.Dispatch(ctx, s.sender,
		[]mails.ForwardTarget{target(s.T(), "user@domain", "ext@foo.com")},
		s.parcel(entry))

	attempts := batch.Wait()
	s.Require().Len(attempts, 1)
	s.Equal(StateDelivered, attempts[0].State)
}

func (s *CourierTestSuite) TestWait() {
	entries := []*testEntry{
		newTestEntry("Subject: One\r\n\r\n"),
		newTestEntry("Subject: Two\r\n\r\n"),
	}

	s.exchanger.
		On("Exchange", mock.Anything, "foo.com").
		Return(nil, "mx.foo.com", nil)
	s.transport.
		On("Send", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	for _, entry := range entries {
		s.courier.Dispatch(context.TODO(), s.sender,
			[]mails.ForwardTarget{target(s.T(), "user@domain", "ext@foo.com")},
			s.parcel(entry))
	}

	s.courier.Wait()

	for _, entry := range entries {
		s.Equal(1, entry.releaseCount())
	}
}

func (s *CourierTestSuite) TestParcelReader() {
	entry := newTestEntry("Subject: Hello\r\n\r\n")
	parcel := s.parcel(entry)

	for i := 0; i < 2; i++ {
		r, err := parcel.Reader()
		s.Require().NoError(err)

		s.Equal("Return-Path: <alice@example.com>\r\nSubject: Hello\r\n\r\n", readAll(s.T(), r))
	}
}
