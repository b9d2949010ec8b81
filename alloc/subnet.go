// Package alloc hands out the finite resources an arena needs: network
// subnets and per-container CPU and memory limits.
package alloc

import (
	"errors"
	"fmt"
	"sync"
)

var ErrExhausted = errors.New("no subnets left")

const (
	firstSubnet = 1
	lastSubnet  = 254
)

// SubnetPool leases the /24 subnets 172.18.1.0 through 172.18.254.0.
type SubnetPool struct {
	mu     sync.Mutex
	leased map[string]bool
	next   int
}

func NewSubnetPool() *SubnetPool {
	return &SubnetPool{leased: map[string]bool{}, next: firstSubnet}
}

func subnet(i int) string {
	return fmt.Sprintf("172.18.%d.0/24", i)
}

// Acquire leases a free subnet. Leases rotate through the range so a subnet
// just released is the last to be handed out again.
func (p *SubnetPool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := 0; n <= lastSubnet-firstSubnet; n++ {
		i := p.next
		p.next++
		if p.next > lastSubnet {
			p.next = firstSubnet
		}
		if s := subnet(i); !p.leased[s] {
			p.leased[s] = true
			return s, nil
		}
	}
	return "", ErrExhausted
}

// Release returns a subnet to the pool. Unknown subnets are ignored.
func (p *SubnetPool) Release(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.leased, s)
}

func (p *SubnetPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}
