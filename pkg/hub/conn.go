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

package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const connWriteTimeout = 10 * time.Second

// wsConn serializes writes to one websocket connection. gorilla/websocket
// allows at most one concurrent writer per connection.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))

	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() {
	_ = c.conn.Close()
}

// RemoteAddr is used for logging only.
func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
