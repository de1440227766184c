package runner

import (
	"fmt"

	"github.com/dop251/goja"
)

// readableStreamJS is a minimal ReadableStream with a default reader,
// covering start/pull/cancel underlying sources and a count-based
// highWaterMark. It evaluates to the constructor.
const readableStreamJS = `
(function () {
'use strict';

class ReadableStreamDefaultController {
	constructor(stream) {
		this._stream = stream;
	}
	get desiredSize() {
		const s = this._stream;
		if (s._state === 'errored') return null;
		if (s._state === 'closed') return 0;
		return s._highWaterMark - s._queue.length;
	}
	enqueue(chunk) {
		const s = this._stream;
		if (s._closeRequested || s._state !== 'readable') {
			throw new TypeError('ReadableStream is not readable');
		}
		if (s._reads.length > 0) {
			s._reads.shift().resolve({ value: chunk, done: false });
		} else {
			s._queue.push(chunk);
		}
		s._pullIfNeeded();
	}
	close() {
		const s = this._stream;
		if (s._closeRequested || s._state !== 'readable') {
			throw new TypeError('ReadableStream is not readable');
		}
		s._closeRequested = true;
		if (s._queue.length === 0) s._finishClose();
	}
	error(e) {
		this._stream._error(e);
	}
}

class ReadableStream {
	constructor(source, strategy) {
		source = source || {};
		this._source = source;
		this._state = 'readable';
		this._queue = [];
		this._reads = [];
		this._reader = undefined;
		this._storedError = undefined;
		this._closeRequested = false;
		this._started = false;
		this._pulling = false;
		this._pullAgain = false;
		this._highWaterMark = strategy && strategy.highWaterMark !== undefined ? Number(strategy.highWaterMark) : 1;
		this._controller = new ReadableStreamDefaultController(this);
		const self = this;
		Promise.resolve(typeof source.start === 'function' ? source.start(this._controller) : undefined).then(function () {
			self._started = true;
			self._pullIfNeeded();
		}, function (e) {
			self._error(e);
		});
	}
	get locked() {
		return this._reader !== undefined;
	}
	getReader() {
		return new ReadableStreamDefaultReader(this);
	}
	cancel(reason) {
		if (this.locked) return Promise.reject(new TypeError('ReadableStream is locked'));
		return this._cancel(reason);
	}
	_cancel(reason) {
		if (this._state === 'closed') return Promise.resolve();
		if (this._state === 'errored') return Promise.reject(this._storedError);
		this._queue = [];
		this._finishClose();
		const source = this._source;
		return Promise.resolve(typeof source.cancel === 'function' ? source.cancel(reason) : undefined).then(function () {});
	}
	_read() {
		if (this._queue.length > 0) {
			const value = this._queue.shift();
			if (this._closeRequested && this._queue.length === 0) {
				this._finishClose();
			} else {
				this._pullIfNeeded();
			}
			return Promise.resolve({ value: value, done: false });
		}
		if (this._state === 'closed') return Promise.resolve({ value: undefined, done: true });
		if (this._state === 'errored') return Promise.reject(this._storedError);
		const self = this;
		const p = new Promise(function (resolve, reject) {
			self._reads.push({ resolve: resolve, reject: reject });
		});
		this._pullIfNeeded();
		return p;
	}
	_pullIfNeeded() {
		if (!this._started || this._state !== 'readable' || this._closeRequested || typeof this._source.pull !== 'function') return;
		if (this._queue.length >= this._highWaterMark && this._reads.length === 0) return;
		if (this._pulling) {
			this._pullAgain = true;
			return;
		}
		this._pulling = true;
		const self = this;
		Promise.resolve(this._source.pull(this._controller)).then(function () {
			self._pulling = false;
			if (self._pullAgain) {
				self._pullAgain = false;
				self._pullIfNeeded();
			}
		}, function (e) {
			self._error(e);
		});
	}
	_finishClose() {
		this._state = 'closed';
		const reads = this._reads;
		this._reads = [];
		reads.forEach(function (r) { r.resolve({ value: undefined, done: true }); });
		if (this._reader) this._reader._resolveClosed();
	}
	_error(e) {
		if (this._state !== 'readable') return;
		this._state = 'errored';
		this._storedError = e;
		this._queue = [];
		const reads = this._reads;
		this._reads = [];
		reads.forEach(function (r) { r.reject(e); });
		if (this._reader) this._reader._rejectClosed(e);
	}
}

class ReadableStreamDefaultReader {
	constructor(stream) {
		if (!(stream instanceof ReadableStream)) throw new TypeError('not a ReadableStream');
		if (stream.locked) throw new TypeError('ReadableStream is locked');
		const self = this;
		this._closed = new Promise(function (resolve, reject) {
			self._resolveClosed = resolve;
			self._rejectClosed = reject;
		});
		this._closed.catch(function () {});
		this._stream = stream;
		stream._reader = this;
		if (stream._state === 'closed') this._resolveClosed();
		if (stream._state === 'errored') this._rejectClosed(stream._storedError);
	}
	get closed() {
		return this._closed;
	}
	read() {
		if (!this._stream) return Promise.reject(new TypeError('reader has been released'));
		return this._stream._read();
	}
	cancel(reason) {
		if (!this._stream) return Promise.reject(new TypeError('reader has been released'));
		return this._stream._cancel(reason);
	}
	releaseLock() {
		if (!this._stream) return;
		if (this._stream._reads.length > 0) throw new TypeError('reader has pending reads');
		this._stream._reader = undefined;
		this._stream = undefined;
	}
}

return ReadableStream;
})()
`

// ReadableStream evaluates the bundled ReadableStream implementation in
// runtime, returning the constructor. It is a
// [gojafetchlocation.BuiltinFactory], installed by [New] unless
// [WithoutBuiltins] is given.
func ReadableStream(runtime *goja.Runtime) (goja.Value, error) {
	v, err := runtime.RunScript(`readablestream.js`, readableStreamJS)
	if err != nil {
		return nil, fmt.Errorf("runner: evaluate ReadableStream: %w", err)
	}
	return v, nil
}
