// internal/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 包装 zk.Conn，便于在锁实现中替换
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群，servers 格式为 "host1:2181,host2:2181"
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("zookeeper: no servers configured")
	}
	conn, _, err := zk.Connect(list, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zookeeper: connect: %w", err)
	}
	return &Conn{Conn: conn}, nil
}
