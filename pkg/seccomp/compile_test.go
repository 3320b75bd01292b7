// Copyright 2024 The vmmguard Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package seccomp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	netbpf "golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/bpf"
)

const testArch = linux.AUDIT_ARCH_X86_64

func testOptions() ProgramOptions {
	return ProgramOptions{
		DefaultAction: linux.SECCOMP_RET_TRAP,
		Arch:          testArch,
	}
}

func mustPolicy(t *testing.T, rules ...Rule) *Policy {
	t.Helper()
	p, err := NewPolicy(rules...)
	if err != nil {
		t.Fatalf("NewPolicy() failed: %v", err)
	}
	return p
}

func mustCompile(t *testing.T, p *Policy) *Program {
	t.Helper()
	prog, err := Compile(p, testOptions())
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	checkStructure(t, prog, p.Len() > 0)
	return prog
}

// checkStructure verifies the layout every compiled program must have.
func checkStructure(t *testing.T, p *Program, hasRules bool) {
	t.Helper()
	insns := p.Instructions()
	n := len(insns)
	if n < 5 {
		t.Fatalf("program has %d instructions, want at least 5", n)
	}
	if want := bpf.Stmt(bpf.Ret|bpf.K, uint32(p.DefaultAction())); insns[n-2] != want {
		t.Errorf("instruction %d = %v, want deny return %v", n-2, insns[n-2], want)
	}
	if want := bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW)); insns[n-1] != want {
		t.Errorf("instruction %d = %v, want allow return %v", n-1, insns[n-1], want)
	}

	reachable := make([]bool, n)
	reachable[0] = true
	returns := 0
	for pc, ins := range insns {
		if bpf.IsReturn(ins) {
			returns++
		}
		if !reachable[pc] {
			continue
		}
		for _, target := range bpf.Targets(pc, ins) {
			if target <= pc || target >= n {
				t.Fatalf("instruction %d (%v) jumps to %d, outside of (%d, %d)", pc, ins, target, pc, n)
			}
			reachable[target] = true
		}
	}
	if returns != 2 {
		t.Errorf("program has %d returns, want 2", returns)
	}
	for pc, ok := range reachable {
		if !ok && (hasRules || pc != n-1) {
			t.Errorf("instruction %d (%v) is unreachable", pc, insns[pc])
		}
	}
}

func TestScenarios(t *testing.T) {
	type spec struct {
		// desc is the test's description.
		desc string

		// data is the input data.
		data Data

		// want is the expected return value of the BPF program.
		want linux.BPFAction
	}

	for _, test := range []struct {
		name  string
		rules []Rule
		specs []spec
	}{
		{
			name:  "read only",
			rules: []Rule{NewRule(unix.SYS_READ).MustBuild()},
			specs: []spec{
				{
					desc: "read with any arguments is allowed",
					data: Data{Nr: unix.SYS_READ, Arch: testArch, Args: [6]uint64{3, 0xdeadbeef, 4096}},
					want: linux.SECCOMP_RET_ALLOW,
				},
				{
					desc: "write is denied",
					data: Data{Nr: unix.SYS_WRITE, Arch: testArch},
					want: linux.SECCOMP_RET_TRAP,
				},
			},
		},
		{
			name:  "fcntl with descriptor flag commands",
			rules: []Rule{NewRule(unix.SYS_FCNTL).Allow(1, linux.F_SETFD, linux.F_GETFD).MustBuild()},
			specs: []spec{
				{
					desc: "F_SETFD is allowed",
					data: Data{Nr: unix.SYS_FCNTL, Arch: testArch, Args: [6]uint64{3, linux.F_SETFD}},
					want: linux.SECCOMP_RET_ALLOW,
				},
				{
					desc: "F_GETFD is allowed",
					data: Data{Nr: unix.SYS_FCNTL, Arch: testArch, Args: [6]uint64{3, linux.F_GETFD}},
					want: linux.SECCOMP_RET_ALLOW,
				},
				{
					desc: "F_SETFL is denied",
					data: Data{Nr: unix.SYS_FCNTL, Arch: testArch, Args: [6]uint64{3, linux.F_SETFL}},
					want: linux.SECCOMP_RET_TRAP,
				},
			},
		},
		{
			name:  "madvise with paging advice",
			rules: []Rule{NewRule(unix.SYS_MADVISE).Allow(2, linux.MADV_DONTNEED, linux.MADV_WILLNEED).MustBuild()},
			specs: []spec{
				{
					desc: "MADV_DONTNEED is allowed",
					data: Data{Nr: unix.SYS_MADVISE, Arch: testArch, Args: [6]uint64{0x7f0000000000, 4096, linux.MADV_DONTNEED}},
					want: linux.SECCOMP_RET_ALLOW,
				},
				{
					desc: "MADV_FREE is denied",
					data: Data{Nr: unix.SYS_MADVISE, Arch: testArch, Args: [6]uint64{0x7f0000000000, 4096, linux.MADV_FREE}},
					want: linux.SECCOMP_RET_TRAP,
				},
			},
		},
		{
			name: "empty policy",
			specs: []spec{
				{
					desc: "read is denied",
					data: Data{Nr: unix.SYS_READ, Arch: testArch},
					want: linux.SECCOMP_RET_TRAP,
				},
				{
					desc: "syscall 0 is denied",
					data: Data{Nr: 0, Arch: testArch},
					want: linux.SECCOMP_RET_TRAP,
				},
			},
		},
		{
			name: "every group must match",
			rules: []Rule{
				NewRule(1).Allow(0, 10, 11).Allow(3, 7).MustBuild(),
				NewRule(3).MustBuild(),
			},
			specs: []spec{
				{
					desc: "both groups match",
					data: Data{Nr: 1, Arch: testArch, Args: [6]uint64{11, 0, 0, 7}},
					want: linux.SECCOMP_RET_ALLOW,
				},
				{
					desc: "first group fails",
					data: Data{Nr: 1, Arch: testArch, Args: [6]uint64{12, 0, 0, 7}},
					want: linux.SECCOMP_RET_TRAP,
				},
				{
					desc: "second group fails",
					data: Data{Nr: 1, Arch: testArch, Args: [6]uint64{10, 0, 0, 8}},
					want: linux.SECCOMP_RET_TRAP,
				},
				{
					desc: "rule after a constrained rule",
					data: Data{Nr: 3, Arch: testArch},
					want: linux.SECCOMP_RET_ALLOW,
				},
			},
		},
		{
			name:  "only the low word is compared",
			rules: []Rule{NewRule(1).Allow(0, 0x1234).MustBuild()},
			specs: []spec{
				{
					desc: "high bits set",
					data: Data{Nr: 1, Arch: testArch, Args: [6]uint64{0xffffffff00001234}},
					want: linux.SECCOMP_RET_ALLOW,
				},
			},
		},
		{
			name:  "foreign architecture",
			rules: []Rule{NewRule(1).MustBuild()},
			specs: []spec{
				{
					desc: "allowed number on another architecture",
					data: Data{Nr: 1, Arch: linux.AUDIT_ARCH_I386},
					want: linux.SECCOMP_RET_TRAP,
				},
				{
					desc: "instruction pointer is ignored",
					data: Data{Nr: 1, Arch: testArch, InstructionPointer: 0xffffffffff600000},
					want: linux.SECCOMP_RET_ALLOW,
				},
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := mustCompile(t, mustPolicy(t, test.rules...))
			for _, s := range test.specs {
				got, err := p.Evaluate(s.data)
				if err != nil {
					t.Errorf("%s: Evaluate() failed: %v", s.desc, err)
					continue
				}
				if got != s.want {
					t.Errorf("%s: Evaluate() = %v, want: %v\nprogram:\n%v", s.desc, got, s.want, p)
				}
			}
		})
	}
}

func randomPolicy(r *rand.Rand) []Rule {
	n := r.Intn(50) + 1
	var rules []Rule
	for _, sysno := range r.Perm(200)[:n] {
		b := NewRule(uintptr(sysno))
		for arg := 0; arg < MaxArgs; arg++ {
			if r.Intn(4) != 0 {
				continue
			}
			for k := r.Intn(4) + 1; k > 0; k-- {
				b.Allow(arg, uint32(r.Intn(8)))
			}
		}
		rules = append(rules, b.MustBuild())
	}
	return rules
}

func randomData(r *rand.Rand) Data {
	d := Data{Nr: uint32(r.Intn(210)), Arch: testArch}
	for i := range d.Args {
		d.Args[i] = uint64(r.Intn(8))
		if r.Intn(8) == 0 {
			d.Args[i] |= uint64(r.Uint32()) << 32
		}
	}
	return d
}

// TestRandom checks that compiled programs agree with the policy they were
// compiled from, whatever the rule order.
func TestRandom(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Logf("seed: %d", seed)
	r := rand.New(rand.NewSource(seed))

	for iter := 0; iter < 50; iter++ {
		rules := randomPolicy(r)
		p := mustPolicy(t, rules...)
		shuffled := append([]Rule(nil), rules...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		progs := []*Program{mustCompile(t, p), mustCompile(t, mustPolicy(t, shuffled...))}

		for i := 0; i < 500; i++ {
			d := randomData(r)
			if i%5 == 0 {
				// Exercise allowed calls more often than chance would.
				rule := rules[r.Intn(len(rules))]
				d.Nr = uint32(rule.Syscall())
				for _, g := range rule.Groups() {
					d.Args[g.Index] = uint64(g.Values[r.Intn(len(g.Values))])
				}
			}
			want := linux.SECCOMP_RET_TRAP
			if p.Allows(d) {
				want = linux.SECCOMP_RET_ALLOW
			}
			for k, prog := range progs {
				got, err := prog.Evaluate(d)
				if err != nil {
					t.Fatalf("Evaluate(%+v) failed: %v", d, err)
				}
				if got != want {
					t.Fatalf("program %d: Evaluate(%+v) = %v, want %v\npolicy:\n%v", k, d, got, want, p)
				}
			}
		}
	}
}

// netbpfInput lays out d for golang.org/x/net/bpf, which loads words in
// network byte order.
func netbpfInput(d Data) []byte {
	in := make([]byte, linux.SizeOfSeccompData)
	binary.BigEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_NR:], d.Nr)
	binary.BigEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_ARCH:], d.Arch)
	binary.BigEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_IP:], uint32(d.InstructionPointer))
	binary.BigEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_IP+4:], uint32(d.InstructionPointer>>32))
	for i, arg := range d.Args {
		binary.BigEndian.PutUint32(in[linux.SeccompDataOffsetArgLow(i):], uint32(arg))
		binary.BigEndian.PutUint32(in[linux.SeccompDataOffsetArgHigh(i):], uint32(arg>>32))
	}
	return in
}

// TestNetBPFAgrees runs compiled programs in golang.org/x/net/bpf's virtual
// machine and checks it returns the same actions as our interpreter.
func TestNetBPFAgrees(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 20; iter++ {
		prog := mustCompile(t, mustPolicy(t, randomPolicy(r)...))
		insts, ok := netbpf.Disassemble(bpf.ToRaw(prog.Instructions()))
		if !ok {
			t.Fatalf("netbpf.Disassemble() could not decode program:\n%v", prog)
		}
		vm, err := netbpf.NewVM(insts)
		if err != nil {
			t.Fatalf("netbpf.NewVM() failed: %v", err)
		}
		for i := 0; i < 200; i++ {
			d := randomData(r)
			want, err := prog.Evaluate(d)
			if err != nil {
				t.Fatalf("Evaluate(%+v) failed: %v", d, err)
			}
			got, err := vm.Run(netbpfInput(d))
			if err != nil {
				t.Fatalf("vm.Run(%+v) failed: %v", d, err)
			}
			if linux.BPFAction(uint32(got)) != want {
				t.Fatalf("vm.Run(%+v) = %#x, want %v", d, uint32(got), want)
			}
		}
	}
}

func TestDeterministic(t *testing.T) {
	rules := randomPolicy(rand.New(rand.NewSource(7)))
	a := mustCompile(t, mustPolicy(t, rules...))
	b := mustCompile(t, mustPolicy(t, rules...))
	if diff := cmp.Diff(a.Instructions(), b.Instructions()); diff != "" {
		t.Errorf("programs differ (-first +second):\n%s", diff)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Errorf("Bytes() differ")
	}
	if got, want := len(a.Bytes()), a.Len()*linux.SizeOfBPFInstruction; got != want {
		t.Errorf("len(Bytes()) = %d, want %d", got, want)
	}
}

// TestLargeGroup checks that groups too long for a conditional jump are
// split and relayed, and that the rule behind them stays reachable.
func TestLargeGroup(t *testing.T) {
	var values []uint32
	for v := uint32(0); v < 600; v++ {
		values = append(values, v*3)
	}
	p := mustPolicy(t,
		NewRule(7).Allow(1, values...).MustBuild(),
		NewRule(8).MustBuild(),
	)
	prog := mustCompile(t, p)

	stats := prog.Stats()
	if stats.Relays != 2 {
		t.Errorf("Stats().Relays = %d, want 2", stats.Relays)
	}
	if stats.LongRules != 1 {
		t.Errorf("Stats().LongRules = %d, want 1", stats.LongRules)
	}
	if stats.Values != 600 || stats.Groups != 1 || stats.Rules != 2 {
		t.Errorf("Stats() = %v, want 2 rules, 1 group, 600 values", stats)
	}
	if stats.Instructions != prog.Len() {
		t.Errorf("Stats().Instructions = %d, want %d", stats.Instructions, prog.Len())
	}

	for v := uint32(0); v < 1800; v++ {
		d := Data{Nr: 7, Arch: testArch, Args: [6]uint64{0, uint64(v)}}
		want := linux.SECCOMP_RET_TRAP
		if v%3 == 0 {
			want = linux.SECCOMP_RET_ALLOW
		}
		got, err := prog.Evaluate(d)
		if err != nil {
			t.Fatalf("Evaluate(%+v) failed: %v", d, err)
		}
		if got != want {
			t.Fatalf("Evaluate(arg1=%d) = %v, want %v", v, got, want)
		}
	}
	if got, err := prog.Evaluate(Data{Nr: 8, Arch: testArch}); err != nil || got != linux.SECCOMP_RET_ALLOW {
		t.Errorf("Evaluate(8) = %v, %v, want allow", got, err)
	}
	if got, err := prog.Evaluate(Data{Nr: 9, Arch: testArch}); err != nil || got != linux.SECCOMP_RET_TRAP {
		t.Errorf("Evaluate(9) = %v, %v, want trap", got, err)
	}
}

func TestSizeLimit(t *testing.T) {
	rulesFor := func(n int) []Rule {
		rules := make([]Rule, n)
		for i := range rules {
			rules[i] = NewRule(uintptr(i)).MustBuild()
		}
		return rules
	}

	// Five fixed instructions, one load, two per unconditional rule.
	fits := (bpf.MaxInstructions - 6) / 2
	prog, err := Compile(mustPolicy(t, rulesFor(fits)...), testOptions())
	if err != nil {
		t.Fatalf("Compile(%d rules) failed: %v", fits, err)
	}
	if prog.Len() != bpf.MaxInstructions {
		t.Errorf("Len() = %d, want %d", prog.Len(), bpf.MaxInstructions)
	}

	_, err = Compile(mustPolicy(t, rulesFor(fits+1)...), testOptions())
	var tooLarge *PolicyTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("Compile(%d rules) = %v, want PolicyTooLargeError", fits+1, err)
	}
	if tooLarge.Instructions != bpf.MaxInstructions+2 || tooLarge.Limit != bpf.MaxInstructions {
		t.Errorf("got %+v, want %d instructions over a %d limit", tooLarge, bpf.MaxInstructions+2, bpf.MaxInstructions)
	}
	if !errors.Is(err, ErrPolicyTooLarge) {
		t.Errorf("errors.Is(%v, ErrPolicyTooLarge) = false", err)
	}

	opts := testOptions()
	opts.MaxInstructions = 10
	if _, err := Compile(mustPolicy(t, rulesFor(3)...), opts); !errors.Is(err, ErrPolicyTooLarge) {
		t.Errorf("Compile() with a 10 instruction limit = %v, want ErrPolicyTooLarge", err)
	}
}

func TestProgramInvalid(t *testing.T) {
	for _, test := range []struct {
		name string
		rule Rule
		opts ProgramOptions
	}{
		{
			name: "argument index out of range",
			rule: Rule{sysno: 1, groups: []ConstraintGroup{{Index: MaxArgs, Values: []uint32{1}}}},
			opts: testOptions(),
		},
		{
			name: "unknown comparison",
			rule: Rule{sysno: 1, groups: []ConstraintGroup{{Index: 0, Op: CmpOp(3), Values: []uint32{1}}}},
			opts: testOptions(),
		},
		{
			name: "group without values",
			rule: Rule{sysno: 1, groups: []ConstraintGroup{{Index: 0}}},
			opts: testOptions(),
		},
		{
			name: "allow as default action",
			rule: NewRule(1).MustBuild(),
			opts: ProgramOptions{DefaultAction: linux.SECCOMP_RET_ALLOW},
		},
		{
			name: "limit above the kernel's",
			rule: NewRule(1).MustBuild(),
			opts: ProgramOptions{DefaultAction: linux.SECCOMP_RET_TRAP, MaxInstructions: bpf.MaxInstructions + 1},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Compile(mustPolicy(t, test.rule), test.opts)
			if !errors.Is(err, ErrProgramInvalid) {
				t.Errorf("Compile() = %v, want ErrProgramInvalid", err)
			}
		})
	}
}

// TestRuleOrder checks that earlier rules are cheaper to reach.
func TestRuleOrder(t *testing.T) {
	var rules []Rule
	for i := 0; i < 20; i++ {
		rules = append(rules, NewRule(uintptr(i)).MustBuild())
	}
	prog := mustCompile(t, mustPolicy(t, rules...))
	_, first, err := prog.Trace(Data{Nr: 0, Arch: testArch})
	if err != nil {
		t.Fatalf("Trace() failed: %v", err)
	}
	_, last, err := prog.Trace(Data{Nr: 19, Arch: testArch})
	if err != nil {
		t.Fatalf("Trace() failed: %v", err)
	}
	if first >= last {
		t.Errorf("first rule ran %d instructions, last rule ran %d", first, last)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultProgramOptions()
	if opts.DefaultAction != linux.SECCOMP_RET_KILL_PROCESS {
		t.Errorf("DefaultAction = %v, want kill process", opts.DefaultAction)
	}
	prog, err := Compile(nil, ProgramOptions{DefaultAction: linux.SECCOMP_RET_KILL_PROCESS})
	if err != nil {
		t.Fatalf("Compile(nil) failed: %v", err)
	}
	if prog.Arch() != NativeArch {
		t.Errorf("Arch() = %#x, want %#x", prog.Arch(), NativeArch)
	}
	checkStructure(t, prog, false)
}
