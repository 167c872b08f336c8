package viewmodel_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dankoteck/extremely-simple-todo-app/internal/querycache"
	"github.com/dankoteck/extremely-simple-todo-app/internal/service"
	"github.com/dankoteck/extremely-simple-todo-app/internal/testutil"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
	"github.com/dankoteck/extremely-simple-todo-app/internal/viewmodel"
)

type toasts struct {
	mu  sync.Mutex
	got []viewmodel.Toast
}

func (r *toasts) Notify(t viewmodel.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
}

func (r *toasts) all() []viewmodel.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]viewmodel.Toast(nil), r.got...)
}

func newVM(t *testing.T, api *testutil.FakeAPI, opts ...viewmodel.Option) (*viewmodel.ViewModel, *toasts) {
	t.Helper()
	rec := &toasts{}
	opts = append([]viewmodel.Option{viewmodel.WithLogger(log.New(io.Discard))}, opts...)
	return viewmodel.New(api, querycache.New[[]todo.Todo](), rec, opts...), rec
}

func seed(t *testing.T, api *testutil.FakeAPI, titles ...string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range titles {
		err := api.Repo.Create(context.Background(), todo.Todo{
			ID:        "seed-" + title,
			Title:     title,
			UserID:    api.User,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func assertConverged(t *testing.T, vm *viewmodel.ViewModel, api *testutil.FakeAPI) {
	t.Helper()
	got, want := vm.Todos(), api.Server(context.Background())
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cache diverged from server\ncache:  %+v\nserver: %+v", got, want)
	}
}

func idOf(t *testing.T, vm *viewmodel.ViewModel, title string) string {
	t.Helper()
	for _, td := range vm.Todos() {
		if td.Title == title {
			return td.ID
		}
	}
	t.Fatalf("no todo titled %q in %+v", title, vm.Todos())
	return ""
}

func TestTodosBeforeLoad(t *testing.T) {
	vm, _ := newVM(t, testutil.NewFakeAPI("alice"))
	if got := vm.Todos(); got == nil || len(got) != 0 {
		t.Errorf("Todos before load: got %#v, want empty slice", got)
	}
}

func TestConvergence(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	vm, rec := newVM(t, api)
	ctx := context.Background()

	if err := vm.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertConverged(t, vm, api)

	steps := []struct {
		name string
		run  func() error
	}{
		{"add milk", func() error { return vm.Add(ctx, "milk") }},
		{"add eggs", func() error { return vm.Add(ctx, "eggs") }},
		{"toggle milk", func() error { return vm.Toggle(ctx, idOf(t, vm, "milk")) }},
		{"delete eggs", func() error { return vm.Delete(ctx, idOf(t, vm, "eggs")) }},
		{"add bread", func() error { return vm.Add(ctx, "bread") }},
		{"untoggle milk", func() error { return vm.ToggleCompleted(ctx, idOf(t, vm, "milk"), false) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		assertConverged(t, vm, api)
	}

	todos := vm.Todos()
	if len(todos) != 2 || todos[todo.Index(todos, idOf(t, vm, "milk"))].Completed {
		t.Errorf("final list: %+v", todos)
	}
	for _, td := range todos {
		if strings.HasPrefix(td.ID, viewmodel.TempIDPrefix) {
			t.Errorf("placeholder id survived the refetch: %+v", td)
		}
	}
	if len(rec.all()) != 0 {
		t.Errorf("unexpected toasts: %+v", rec.all())
	}
}

func TestOptimisticValueVisibleDuringCall(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	seed(t, api, "milk")
	vm, _ := newVM(t, api, viewmodel.WithTempID(func() string { return "tmp-1" }))
	ctx := context.Background()
	if err := vm.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var during []todo.Todo
	api.Hook = func(op string) {
		if op == testutil.OpAdd {
			during = vm.Todos()
		}
	}
	if err := vm.Add(ctx, "eggs"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(during) != 2 || during[1].ID != "tmp-1" || during[1].Title != "eggs" || during[1].Completed {
		t.Errorf("optimistic list: %+v", during)
	}
}

func TestRollbackOnFailure(t *testing.T) {
	boom := todo.NewError(todo.KindInternal, service.MsgCreateFailed, nil)

	tests := []struct {
		name   string
		inject func(api *testutil.FakeAPI)
		run    func(ctx context.Context, vm *viewmodel.ViewModel) error
		op     string
	}{
		{
			name:   "add",
			inject: func(api *testutil.FakeAPI) { api.AddErr = boom },
			run:    func(ctx context.Context, vm *viewmodel.ViewModel) error { return vm.Add(ctx, "bread") },
			op:     "add",
		},
		{
			name:   "toggle",
			inject: func(api *testutil.FakeAPI) { api.ToggleErr = boom },
			run:    func(ctx context.Context, vm *viewmodel.ViewModel) error { return vm.Toggle(ctx, "seed-milk") },
			op:     "toggleCompleted",
		},
		{
			name:   "delete",
			inject: func(api *testutil.FakeAPI) { api.DeleteErr = boom },
			run:    func(ctx context.Context, vm *viewmodel.ViewModel) error { return vm.Delete(ctx, "seed-eggs") },
			op:     "delete",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeAPI("alice")
			seed(t, api, "milk", "eggs")

			var (
				vm            *viewmodel.ViewModel
				afterRollback []todo.Todo
				phases        []querycache.Phase
			)
			vm, rec := newVM(t, api, viewmodel.WithPhaseHook(func(op string, p querycache.Phase) {
				if op != tt.op {
					t.Errorf("phase reported for %q, want %q", op, tt.op)
				}
				phases = append(phases, p)
				if p == querycache.PhaseRolledBack {
					afterRollback = vm.Todos()
				}
			}))
			ctx := context.Background()
			if err := vm.Load(ctx); err != nil {
				t.Fatalf("Load: %v", err)
			}
			before := vm.Todos()
			tt.inject(api)

			err := tt.run(ctx, vm)
			if !errors.Is(err, boom) {
				t.Fatalf("got %v, want injected error", err)
			}
			if !reflect.DeepEqual(afterRollback, before) {
				t.Errorf("rollback snapshot differs\nbefore: %+v\nafter:  %+v", before, afterRollback)
			}
			want := []querycache.Phase{querycache.PhaseIdle, querycache.PhaseOptimistic, querycache.PhaseRolledBack, querycache.PhaseReconciled}
			if !reflect.DeepEqual(phases, want) {
				t.Errorf("phases: got %v, want %v", phases, want)
			}

			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("toasts: got %d, want 1", len(got))
			}
			if got[0].Message != service.MsgCreateFailed || got[0].Position != "bottom-right" || got[0].Duration != 5*time.Second {
				t.Errorf("toast: %+v", got[0])
			}
			if api.Calls(testutil.OpAll) != 2 {
				t.Errorf("expected a refetch after the failure, got %d list calls", api.Calls(testutil.OpAll))
			}
			assertConverged(t, vm, api)
		})
	}
}

func TestNonexistentID(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	seed(t, api, "milk")
	vm, rec := newVM(t, api)
	ctx := context.Background()
	if err := vm.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := vm.Todos()

	if err := vm.ToggleCompleted(ctx, "missing", true); todo.KindOf(err) != todo.KindNotFound {
		t.Errorf("toggle missing: got %v, want NOT_FOUND", err)
	}
	if err := vm.Delete(ctx, "missing"); todo.KindOf(err) != todo.KindNotFound {
		t.Errorf("delete missing: got %v, want NOT_FOUND", err)
	}
	if got := vm.Todos(); !reflect.DeepEqual(got, before) {
		t.Errorf("cache changed: %+v", got)
	}
	got := rec.all()
	if len(got) != 2 || got[0].Message != service.MsgNotFound || got[0].Kind != todo.KindNotFound {
		t.Fatalf("toasts: %+v", got)
	}
	if got[0].Kind.Retryable() {
		t.Error("not-found should not be retryable")
	}
}

func TestAddEmptyTitle(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	vm, rec := newVM(t, api)
	ctx := context.Background()

	err := vm.Add(ctx, "")
	if todo.KindOf(err) != todo.KindInvalid {
		t.Fatalf("Add(\"\"): got %v, want BAD_REQUEST", err)
	}
	if got := vm.Todos(); len(got) != 0 {
		t.Errorf("cache after rejected add: %+v", got)
	}
	if len(api.Repo.All()) != 0 {
		t.Error("empty title was stored")
	}
	if len(rec.all()) != 1 {
		t.Errorf("toasts: %+v", rec.all())
	}
}

func TestUnauthenticated(t *testing.T) {
	api := testutil.NewFakeAPI("")
	vm, rec := newVM(t, api)

	err := vm.Add(context.Background(), "milk")
	if todo.KindOf(err) != todo.KindUnauthorized {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
	if got := rec.all(); len(got) != 1 || got[0].Message != service.MsgLoginToCreate {
		t.Errorf("toasts: %+v", got)
	}
	if vm.Err() == nil {
		t.Error("refetch without identity should record an error")
	}
}

func TestConcurrentAdds(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	vm, rec := newVM(t, api)
	ctx := context.Background()

	// Both optimistic writes happen before either call reaches the server.
	var barrier sync.WaitGroup
	barrier.Add(2)
	api.Hook = func(op string) {
		if op == testutil.OpAdd {
			barrier.Done()
			barrier.Wait()
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, title := range []string{"A", "B"} {
		title := title
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- vm.Add(ctx, title)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	count := map[string]int{}
	for _, td := range vm.Todos() {
		count[td.Title]++
	}
	if count["A"] != 1 || count["B"] != 1 || len(vm.Todos()) != 2 {
		t.Errorf("final list: %+v", vm.Todos())
	}
	assertConverged(t, vm, api)
	if len(rec.all()) != 0 {
		t.Errorf("unexpected toasts: %+v", rec.all())
	}
}

func TestMutationSupersedesLoad(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	vm, _ := newVM(t, api)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	api.Hook = func(op string) {
		if op == testutil.OpAll && first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}

	loaded := make(chan error, 1)
	go func() { loaded <- vm.Load(ctx) }()
	<-entered

	if err := vm.Add(ctx, "milk"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	close(release)
	if err := <-loaded; err != nil {
		t.Errorf("superseded Load: %v", err)
	}
	assertConverged(t, vm, api)
}

func TestSubscribe(t *testing.T) {
	api := testutil.NewFakeAPI("alice")
	vm, _ := newVM(t, api)

	var mu sync.Mutex
	var versions [][]todo.Todo
	unsubscribe := vm.Subscribe(func(todos []todo.Todo) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, todos)
	})
	defer unsubscribe()

	if err := vm.Add(context.Background(), "milk"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	// optimistic placeholder, then the refetched list
	if len(versions) != 2 {
		t.Fatalf("versions: got %d, want 2", len(versions))
	}
	if !strings.HasPrefix(versions[0][0].ID, viewmodel.TempIDPrefix) {
		t.Errorf("first version should hold the placeholder: %+v", versions[0])
	}
	if strings.HasPrefix(versions[1][0].ID, viewmodel.TempIDPrefix) {
		t.Errorf("second version should hold the server id: %+v", versions[1])
	}
}
