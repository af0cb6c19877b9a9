/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"io"
)

// Target identifies the remote shell endpoint for one session.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ShellSession is one established interactive shell. Close must be safe to
// call more than once and must terminate any underlying connection.
type ShellSession interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	Close() error
}

// Dialer establishes shell sessions.
type Dialer interface {
	Dial(ctx context.Context, target Target) (ShellSession, error)
}
