// Package shell is the terminal front-end: a numbered menu mirroring the
// main window, with line prompts in place of dialogs.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"smartqr/internal/export"
	"smartqr/internal/invoice"
	"smartqr/internal/label"
	"smartqr/internal/models"
	"smartqr/internal/scan"
	"smartqr/internal/stock"
	"smartqr/internal/store"
)

// Shell runs the menu loop. Empty input at a dialog prompt cancels the
// dialog; the label form reports missing fields instead.
type Shell struct {
	Store    *store.Store
	Labels   *label.Encoder
	Exporter *export.Exporter
	Invoices *invoice.Service

	// Scanner reads frames until a label is recognised.
	Scanner     stock.Scanner
	ScanTimeout time.Duration
	// Interrupt cancels a running scan (Ctrl-C in the terminal).
	Interrupt <-chan os.Signal

	Operator string
	In       io.Reader
	Out      io.Writer

	lines chan string
}

const menu = `
1) QR 라벨 생성
2) 재고 조정 (QR 스캔)
3) 재고 조회
4) 요청 기록
5) 재고 내보내기
6) 청구서 작성
7) 단일 청구 (QR 스캔)
8) 재고 전체 삭제
0) 종료
`

// Run shows the menu until the operator quits, input ends or ctx is done.
// Storage failures are printed and the loop continues.
func (s *Shell) Run(ctx context.Context) error {
	s.lines = make(chan string)
	done := make(chan struct{})
	defer close(done)
	go s.pump(s.lines, done)

	for {
		fmt.Fprint(s.Out, menu)
		choice, ok := s.ask(ctx, "> ")
		if !ok || choice == "0" {
			return nil
		}
		var err error
		switch choice {
		case "1":
			err = s.generateLabel(ctx)
		case "2":
			err = s.adjust(ctx)
		case "3":
			err = s.showInventory(ctx)
		case "4":
			err = s.showRequests(ctx)
		case "5":
			err = s.exportInventory(ctx)
		case "6":
			err = s.buildInvoice(ctx)
		case "7":
			err = s.quickInvoice(ctx)
		case "8":
			err = s.clearAll(ctx)
		case "":
		default:
			s.say("알 수 없는 메뉴입니다: %s", choice)
		}
		if err != nil {
			s.say("오류: %v", err)
		}
	}
}

// pump feeds input lines to lines until input ends or done is closed.
func (s *Shell) pump(lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(s.In)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-done:
			return
		}
	}
}

func (s *Shell) say(format string, args ...interface{}) {
	fmt.Fprintf(s.Out, format+"\n", args...)
}

// ask prints prompt and returns the trimmed reply. ok is false when input
// has ended or ctx is done.
func (s *Shell) ask(ctx context.Context, prompt string) (string, bool) {
	fmt.Fprint(s.Out, prompt)
	select {
	case line, ok := <-s.lines:
		return strings.TrimSpace(line), ok
	case <-ctx.Done():
		return "", false
	}
}

// askInt re-prompts until the reply parses. ok is false on empty input.
func (s *Shell) askInt(ctx context.Context, prompt string) (int, bool) {
	n, blank, ok := s.readInt(ctx, prompt)
	return n, ok && !blank
}

// readInt re-prompts until the reply parses or is blank. ok is false when
// input has ended.
func (s *Shell) readInt(ctx context.Context, prompt string) (n int, blank, ok bool) {
	for {
		reply, ok := s.ask(ctx, prompt)
		if !ok {
			return 0, false, false
		}
		if reply == "" {
			return 0, true, true
		}
		n, err := strconv.Atoi(strings.TrimPrefix(reply, "+"))
		if err == nil {
			return n, false, true
		}
		s.say("정수를 입력하세요.")
	}
}

// generateLabel is a form, not a dialog: blank name or code is reported
// rather than treated as cancel, and a blank quantity means 0.
func (s *Shell) generateLabel(ctx context.Context) error {
	req := label.Request{}
	var ok bool
	if req.ItemName, ok = s.ask(ctx, "물품명: "); !ok {
		return nil
	}
	if req.ItemName != "" {
		if req.ItemCode, ok = s.ask(ctx, "고유코드: "); !ok {
			return nil
		}
	}
	if req.ItemName != "" && req.ItemCode != "" {
		if req.InitialQty, _, ok = s.readInt(ctx, "초기 수량: "); !ok {
			return nil
		}
		req.Category, _ = s.ask(ctx, "분류 (선택): ")
	}

	res, err := s.Labels.Generate(ctx, req)
	if errors.Is(err, label.ErrMissingField) {
		s.say("물품명과 고유코드를 모두 입력하세요.")
		return nil
	}
	if err != nil {
		return err
	}
	s.say("QR 코드가 생성되었습니다: %s (재고 %d)", res.Path, res.Item.TotalStock)
	return nil
}

// PromptDelta asks for the signed stock change of a resolved item.
func (s *Shell) PromptDelta(ctx context.Context, p stock.Pending) (int, bool, error) {
	s.say("%s (%s) 현재 재고: %d", p.ItemName, p.ItemCode, p.Current)
	delta, ok := s.askInt(ctx, "변경 수량 (+입고 / -출고): ")
	return delta, ok, nil
}

func (s *Shell) adjust(ctx context.Context) error {
	flow := &stock.Flow{
		Store:    s.Store,
		Scanner:  scanner{s},
		Prompter: s,
		OnState: func(st stock.State) {
			if st == stock.Scanning {
				s.say("QR 코드를 카메라에 비추세요. (Ctrl-C: 취소)")
			}
		},
	}
	out, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	if out.Kind == stock.Cancelled {
		s.say("취소되었습니다.")
		return nil
	}
	s.say("%s", out.Message())
	return nil
}

// scanner bounds the shell's Scanner by the scan timeout and Ctrl-C.
type scanner struct{ s *Shell }

func (sc scanner) Scan(ctx context.Context) (*models.Payload, error) {
	s := sc.s
	var cancel context.CancelFunc
	if s.ScanTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.ScanTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if s.Interrupt != nil {
	drain:
		for {
			select {
			case <-s.Interrupt:
			default:
				break drain
			}
		}
		go func() {
			select {
			case <-s.Interrupt:
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return s.Scanner.Scan(ctx)
}

func (s *Shell) scanPayload(ctx context.Context) (*models.Payload, error) {
	s.say("QR 코드를 카메라에 비추세요. (Ctrl-C: 취소)")
	p, err := scanner{s}.Scan(ctx)
	if errors.Is(err, scan.ErrMalformedPayload) {
		p, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.say("QR 코드 인식에 실패했습니다.")
	}
	return p, nil
}

func (s *Shell) showInventory(ctx context.Context) error {
	items, err := s.Store.ListItems(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t물품명\t코드\t수량\t분류\t등록일시")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", it.ID, it.ItemName, it.ItemCode, it.TotalStock, it.Category, it.CreatedAt)
	}
	tw.Flush()
	s.say("총 %d건", len(items))
	return nil
}

func (s *Shell) showRequests(ctx context.Context) error {
	entries, err := s.Store.ListRequests(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t코드\t물품명\t청구 수량\t요청일시\t요청자")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", e.ID, e.ItemCode, e.ItemName, e.QuantityRequested, e.RequestDate, e.Requester)
	}
	tw.Flush()
	s.say("총 %d건", len(entries))
	return nil
}

func (s *Shell) exportInventory(ctx context.Context) error {
	items, err := s.Store.ListItems(ctx)
	if err != nil {
		return err
	}
	path, err := s.Exporter.Inventory(items)
	if err != nil {
		return err
	}
	s.say("재고 목록을 저장했습니다: %s", path)
	return nil
}

func (s *Shell) clearAll(ctx context.Context) error {
	reply, ok := s.ask(ctx, "모든 재고를 삭제합니까? (y/N): ")
	if !ok || !strings.EqualFold(reply, "y") {
		s.say("취소되었습니다.")
		return nil
	}
	n, err := s.Store.ClearItems(ctx)
	if err != nil {
		return err
	}
	s.say("재고 %d건을 삭제했습니다.", n)
	return nil
}

func (s *Shell) requester(ctx context.Context) (string, bool) {
	prompt := "요청자: "
	if s.Operator != "" {
		prompt = fmt.Sprintf("요청자 [%s]: ", s.Operator)
	}
	name, ok := s.ask(ctx, prompt)
	if !ok {
		return "", false
	}
	if name == "" {
		name = s.Operator
	}
	return name, true
}

// lineError turns a lookup miss into the operator notice.
func (s *Shell) lineError(code string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.say("등록된 물품(%s)이 없습니다.", code)
		return nil
	case errors.Is(err, invoice.ErrInvalidQty):
		s.say("수량은 1 이상이어야 합니다.")
		return nil
	}
	return err
}

func (s *Shell) quickInvoice(ctx context.Context) error {
	p, err := s.scanPayload(ctx)
	if err != nil || p == nil {
		return err
	}
	qty, ok := s.askInt(ctx, fmt.Sprintf("%s (%s) 청구 수량: ", p.ItemName, p.ItemCode))
	if !ok {
		return nil
	}
	line, err := s.Invoices.LineFromPayload(ctx, p, qty)
	if err != nil {
		return s.lineError(p.ItemCode, err)
	}
	who, ok := s.requester(ctx)
	if !ok {
		return nil
	}
	rec, err := s.Invoices.Quick(ctx, line, who)
	if err != nil {
		return err
	}
	s.say("청구서를 저장했습니다: %s", rec.Path)
	return nil
}

func (s *Shell) printDraft(d *invoice.Draft) {
	lines := d.Lines()
	if len(lines) == 0 {
		s.say("(청구 항목 없음)")
		return
	}
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "번호\t물품명\t코드\t청구 수량")
	for i, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1, l.ItemName, l.ItemCode, l.Qty)
	}
	tw.Flush()
}

// parsePositions reads "1,3 4" as zero-based positions.
func parsePositions(reply string) ([]int, error) {
	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("잘못된 번호: %s", f)
		}
		out = append(out, n-1)
	}
	return out, nil
}

func (s *Shell) buildInvoice(ctx context.Context) error {
	d := invoice.NewDraft()
	for {
		s.printDraft(d)
		choice, ok := s.ask(ctx, "a) QR 스캔 추가  c) 코드로 추가  r) 항목 삭제  g) 청구서 생성  q) 닫기\n> ")
		if !ok {
			return nil
		}
		switch strings.ToLower(choice) {
		case "a":
			p, err := s.scanPayload(ctx)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			qty, ok := s.askInt(ctx, fmt.Sprintf("%s (%s) 청구 수량: ", p.ItemName, p.ItemCode))
			if !ok {
				continue
			}
			line, err := s.Invoices.LineFromPayload(ctx, p, qty)
			if err != nil {
				if err = s.lineError(p.ItemCode, err); err != nil {
					return err
				}
				continue
			}
			d.Add(line)
		case "c":
			code, ok := s.ask(ctx, "고유코드: ")
			if !ok || code == "" {
				continue
			}
			qty, ok := s.askInt(ctx, "청구 수량: ")
			if !ok {
				continue
			}
			line, err := s.Invoices.LineFromCode(ctx, code, qty)
			if err != nil {
				if err = s.lineError(code, err); err != nil {
					return err
				}
				continue
			}
			d.Add(line)
		case "r":
			reply, ok := s.ask(ctx, "삭제할 번호 (예: 1,3): ")
			if !ok || reply == "" {
				continue
			}
			pos, err := parsePositions(reply)
			if err != nil {
				s.say("%v", err)
				continue
			}
			d.Remove(pos...)
		case "g":
			who, ok := s.requester(ctx)
			if !ok {
				continue
			}
			rec, err := s.Invoices.Flush(ctx, d, who)
			if errors.Is(err, invoice.ErrEmptyDraft) {
				s.say("청구 항목이 없습니다.")
				continue
			}
			if err != nil {
				s.say("오류: %v", err)
				continue
			}
			s.say("청구서를 저장했습니다: %s (%d건)", rec.Path, len(rec.Entries))
			return nil
		case "q", "":
			return nil
		}
	}
}
