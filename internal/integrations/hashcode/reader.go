// Package hashcode reads and writes the Hash Code 2016 "Delivery" text formats.
package hashcode

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "os"
    "strconv"

    "dronenav/internal/model"
)

// ErrMalformed is returned for input that does not follow the problem format.
var ErrMalformed = errors.New("malformed problem input")

// MaxCount bounds every count field so a corrupt header cannot force a huge
// allocation.
const MaxCount = 1 << 20

type tokens struct {
    sc *bufio.Scanner
    n  int
}

func (t *tokens) int(what string) (int, error) {
    if !t.sc.Scan() {
        if err := t.sc.Err(); err != nil {
            return 0, err
        }
        return 0, fmt.Errorf("%w: unexpected end of input reading %s", ErrMalformed, what)
    }
    t.n++
    v, err := strconv.Atoi(t.sc.Text())
    if err != nil {
        return 0, fmt.Errorf("%w: token %d (%s): %q is not an integer", ErrMalformed, t.n, what, t.sc.Text())
    }
    return v, nil
}

func (t *tokens) count(what string) (int, error) {
    v, err := t.int(what)
    if err != nil {
        return 0, err
    }
    if v < 0 || v > MaxCount {
        return 0, fmt.Errorf("%w: %s out of range: %d", ErrMalformed, what, v)
    }
    return v, nil
}

func (t *tokens) point(what string) (model.Point, error) {
    x, err := t.int(what + " row")
    if err != nil {
        return model.Point{}, err
    }
    y, err := t.int(what + " column")
    if err != nil {
        return model.Point{}, err
    }
    return model.Point{X: x, Y: y}, nil
}

// Read parses a problem. Tokens may be split across lines arbitrarily; only
// their sequence matters. Semantic checks are left to plan.FromModel.
func Read(r io.Reader) (model.ProblemIn, error) {
    sc := bufio.NewScanner(r)
    sc.Buffer(make([]byte, 64*1024), 1<<20)
    sc.Split(bufio.ScanWords)
    t := &tokens{sc: sc}

    var in model.ProblemIn
    header := []*int{&in.Rows, &in.Cols, &in.Drones, &in.MaxTurns, &in.MaxPayload}
    names := []string{"rows", "columns", "drones", "turns", "max payload"}
    for i, f := range header {
        v, err := t.int(names[i])
        if err != nil {
            return model.ProblemIn{}, err
        }
        *f = v
    }

    types, err := t.count("product type count")
    if err != nil {
        return model.ProblemIn{}, err
    }
    in.ProductWeights = make([]int, types)
    for i := range in.ProductWeights {
        if in.ProductWeights[i], err = t.int(fmt.Sprintf("weight of type %d", i)); err != nil {
            return model.ProblemIn{}, err
        }
    }

    nw, err := t.count("warehouse count")
    if err != nil {
        return model.ProblemIn{}, err
    }
    in.Warehouses = make([]model.WarehouseIn, nw)
    for i := range in.Warehouses {
        w := &in.Warehouses[i]
        if w.Location, err = t.point(fmt.Sprintf("warehouse %d", i)); err != nil {
            return model.ProblemIn{}, err
        }
        w.Stock = make([]int, types)
        for j := range w.Stock {
            if w.Stock[j], err = t.int(fmt.Sprintf("warehouse %d stock", i)); err != nil {
                return model.ProblemIn{}, err
            }
        }
    }

    no, err := t.count("order count")
    if err != nil {
        return model.ProblemIn{}, err
    }
    in.Orders = make([]model.OrderIn, no)
    for i := range in.Orders {
        o := &in.Orders[i]
        if o.Location, err = t.point(fmt.Sprintf("order %d", i)); err != nil {
            return model.ProblemIn{}, err
        }
        items, err := t.count(fmt.Sprintf("order %d item count", i))
        if err != nil {
            return model.ProblemIn{}, err
        }
        o.Products = make([]int, items)
        for j := range o.Products {
            if o.Products[j], err = t.int(fmt.Sprintf("order %d item", i)); err != nil {
                return model.ProblemIn{}, err
            }
        }
    }

    if sc.Scan() {
        return model.ProblemIn{}, fmt.Errorf("%w: trailing data after order %d: %q", ErrMalformed, no-1, sc.Text())
    }
    if err := sc.Err(); err != nil {
        return model.ProblemIn{}, err
    }
    return in, nil
}

// FileSource reads a problem from a file; "-" or "" means stdin.
type FileSource struct {
    Path  string
    Stdin io.Reader
}

func (f FileSource) Name() string {
    if f.Path == "" || f.Path == "-" {
        return "stdin"
    }
    return f.Path
}

func (f FileSource) Fetch(ctx context.Context) (model.ProblemIn, error) {
    if err := ctx.Err(); err != nil {
        return model.ProblemIn{}, err
    }
    if f.Path == "" || f.Path == "-" {
        r := f.Stdin
        if r == nil {
            r = os.Stdin
        }
        return Read(r)
    }
    fh, err := os.Open(f.Path)
    if err != nil {
        return model.ProblemIn{}, fmt.Errorf("open problem: %w", err)
    }
    defer fh.Close()
    in, err := Read(fh)
    if err != nil {
        return model.ProblemIn{}, fmt.Errorf("%s: %w", f.Path, err)
    }
    return in, nil
}
