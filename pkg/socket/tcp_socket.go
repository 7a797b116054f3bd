// Copyright (c) 2023 Paweł Gaczyński
// Copyright (c) 2020 Andy Pan
// Copyright (c) 2017 Max Riveiro
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socket

import (
	stderrors "errors"
	"net"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	errs "github.com/jandudek/reactor/pkg/errors"
)

// ListenTCP creates a non-blocking IPv4 stream socket bound to
// INADDR_ANY:port, sets SO_REUSEADDR, and puts it into listening mode with
// the given backlog. Socket, bind and listen failures are classified against
// a sentinel in pkg/errors so callers can errors.Is against it; a
// SO_REUSEADDR failure is returned as a setsockopt error.
func ListenTCP(port int, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, errors.Wrapf(errs.ErrSocketFailed, "socket: %v", err)
	}

	closeOnError := func(err error) (int, error) {
		_ = unix.Close(fd)

		return -1, err
	}

	if err = SetReuseAddr(fd, 1); err != nil {
		return closeOnError(errs.ErrorSetsockopt("SO_REUSEADDR", err))
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err = os.NewSyscallError("bind", unix.Bind(fd, sa)); err != nil {
		return closeOnError(errors.Wrapf(errs.ErrBindFailed, "%v", err))
	}

	if err = os.NewSyscallError("listen", unix.Listen(fd, backlog)); err != nil {
		return closeOnError(errors.Wrapf(errs.ErrListenFailed, "%v", err))
	}

	return fd, nil
}

// ApplyAcceptedSockOpts sets the options the spec requires on a freshly
// accepted socket: SO_SNDBUF=8192 always, and TCP_CORK when cork is true.
// Both are best-effort: EPERM and ENOPROTOOPT are ignored, and the first
// other setsockopt failure is returned to the caller to log; none of them
// aborts the accept.
func ApplyAcceptedSockOpts(fd int, cork bool) error {
	var sockErrs []error

	if err := SetSendBuffer(fd, acceptedSendBufferSize); err != nil && !tolerable(err) {
		sockErrs = append(sockErrs, errs.ErrorSetsockopt("SO_SNDBUF", err))
	}

	if cork {
		if err := SetCork(fd, true); err != nil && !tolerable(err) {
			sockErrs = append(sockErrs, errs.ErrorSetsockopt("TCP_CORK", err))
		}
	}

	if len(sockErrs) == 0 {
		return nil
	}

	return sockErrs[0]
}

const acceptedSendBufferSize = 8192

func tolerable(err error) bool {
	return stderrors.Is(err, unix.EPERM) || stderrors.Is(err, unix.ENOPROTOOPT)
}

// SockaddrToTCPAddr converts a raw accept4 sockaddr into a *net.TCPAddr,
// returning nil if the family is unexpected.
func SockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(addr.Addr[:]), Port: addr.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(addr.Addr[:]), Port: addr.Port}
	default:
		return nil
	}
}
