package isolate

// bootstrapJS defines globalThis.VM, console, crypto.getRandomValues,
// and TextEncoder/TextDecoder, all funneling through the single native
// __vm_system(jsonString) trampoline — the only host entry point a
// worker installs before compiling tenant code. "register" and
// "validate" never reach Go: they are resolved entirely in JS against a
// per-worker handler registry, matching the bridge table's description
// of validate as delegating "to the registered handler."
const bootstrapJS = `
(function() {
  var __handler = null;

  function __toWire(v) {
    if (v === undefined || v === null) return {unit: true};
    if (typeof v === 'boolean') return {bool: v};
    if (typeof v === 'number') return {float: v};
    if (typeof v === 'string') return {str: v};
    if (v instanceof Uint8Array) {
      var bin = '';
      for (var i = 0; i < v.length; i++) bin += String.fromCharCode(v[i]);
      return {bytesB64: btoa(bin)};
    }
    if (Array.isArray(v)) return {seq: v.map(__toWire)};
    var m = {};
    for (var k in v) m[k] = __toWire(v[k]);
    return {map: m};
  }

  function __fromWire(w) {
    if (!w) return undefined;
    if ('bool' in w) return w.bool;
    if ('float' in w) return w.float;
    if ('str' in w) return w.str;
    if ('bytesB64' in w) {
      var bin = atob(w.bytesB64);
      var out = new Uint8Array(bin.length);
      for (var i = 0; i < bin.length; i++) out[i] = bin.charCodeAt(i);
      return out;
    }
    if (w.seq) return w.seq.map(__fromWire);
    if (w.map) {
      var o = {};
      for (var k in w.map) o[k] = __fromWire(w.map[k]);
      return o;
    }
    return undefined;
  }

  globalThis.VM = function(req) {
    if (req.call === 'register') {
      __handler = req.code;
      return undefined;
    }
    if (req.call === 'validate') {
      if (!__handler) throw new Error('no handler registered');
      var rest = {};
      for (var k in req) if (k !== 'call') rest[k] = req[k];
      return __handler(rest);
    }
    if (req.call === 'system') {
      var envelope = {
        type: req.type,
        data: 'data' in req ? __toWire(req.data) : undefined,
        meta: req.meta,
        prefix: req.prefix,
        createdGt: req.createdGt,
        limit: req.limit,
        byteLength: req.byteLength,
      };
      var resultJSON = __vm_system(JSON.stringify(envelope));
      var result = JSON.parse(resultJSON);
      if (result.error) throw new Error(result.error);
      if (result.list) return result.list;
      return __fromWire(result.value);
    }
    throw new Error('unknown call: ' + req.call);
  };

  globalThis.console = {
    log: function() { VM({call: 'system', type: 'trace', data: Array.prototype.slice.call(arguments).join(' ')}); },
    error: function() { VM({call: 'system', type: 'trace', data: Array.prototype.slice.call(arguments).join(' ')}); },
  };

  globalThis.crypto = globalThis.crypto || {};
  globalThis.crypto.getRandomValues = function(typedArray) {
    var bytes = VM({call: 'system', type: 'randomBytes', byteLength: typedArray.length});
    typedArray.set(bytes);
    return typedArray;
  };

  globalThis.TextEncoder = function() {};
  globalThis.TextEncoder.prototype.encode = function(s) {
    return VM({call: 'system', type: 'utf8Encode', data: s});
  };
  globalThis.TextDecoder = function() {};
  globalThis.TextDecoder.prototype.decode = function(b) {
    return VM({call: 'system', type: 'utf8Decode', data: b});
  };
})();
`
